package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/api/dto"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

// cronJob 单个轮询任务的公共部分：cron 调度、首次执行、超时、防重入
type cronJob struct {
	name    string
	spec    string
	timeout time.Duration
	cron    *cron.Cron
	enabled bool // false 时不注册 cron，只能手动触发
	log     logger.Logger

	// minInterval 定时触发的最小间隔，为 nil 时每次触发都执行
	minInterval func(ctx context.Context) time.Duration

	running atomic.Bool
	mu      sync.Mutex
	lastRun time.Time
	lastErr string
}

func newCronJob(name, spec string, timeout time.Duration, log logger.Logger) *cronJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &cronJob{
		name:    name,
		spec:    spec,
		timeout: timeout,
		cron:    cron.New(cron.WithSeconds()),
		enabled: true,
		log:     log,
	}
}

// start 注册 cron，runOnStart 时立即异步执行一次
func (j *cronJob) start(runOnStart bool, run func(ctx context.Context) error) error {
	if !j.enabled {
		j.log.Infof(context.Background(), "[%s] 定时执行已关闭，仅支持手动触发", j.name)
		return nil
	}
	if runOnStart {
		go func() {
			j.log.Infof(context.Background(), "[%s] 执行首次同步...", j.name)
			j.scheduled(run, true)
		}()
	}

	if _, err := j.cron.AddFunc(j.spec, func() { j.scheduled(run, false) }); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Infof(context.Background(), "[%s] 已启动 (%s)", j.name, j.spec)
	return nil
}

// stop 停止调度并等待正在执行的任务结束
func (j *cronJob) stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.log.Infof(context.Background(), "[%s] 已停止", j.name)
}

func (j *cronJob) scheduled(run func(ctx context.Context) error, force bool) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if !force && j.minInterval != nil {
		if last := j.lastRunAt(); !last.IsZero() && time.Since(last) < j.minInterval(ctx) {
			return
		}
	}
	if err := j.exec(ctx, true, run); errors.Is(err, ErrTaskRunning) {
		j.log.Warnf(ctx, "[%s] 上一次执行尚未结束，跳过本次触发", j.name)
	}
}

// exec 同一任务同时只执行一次，定时与手动触发共用
// record 为 false 时（试运行）不更新 lastRun，不影响定时间隔判断
func (j *cronJob) exec(ctx context.Context, record bool, run func(ctx context.Context) error) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrTaskRunning
	}
	defer j.running.Store(false)

	err := run(ctx)

	if record {
		j.mu.Lock()
		j.lastRun = time.Now()
		j.lastErr = ""
		if err != nil {
			j.lastErr = err.Error()
		}
		j.mu.Unlock()
	}

	if err != nil {
		j.log.Errorf(ctx, "[%s] 执行失败: %v", j.name, err)
	}
	return err
}

func (j *cronJob) lastRunAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

func (j *cronJob) status() dto.TaskStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := dto.TaskStatus{Enabled: j.enabled, Running: j.running.Load(), LastErr: j.lastErr}
	if !j.lastRun.IsZero() {
		t := j.lastRun
		s.LastRun = &t
	}
	return s
}
