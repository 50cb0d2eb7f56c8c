package service

import (
	"context"
	"errors"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/metrics"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/google/uuid"
)

// startRun 为一次运行生成 run_id 并施加运行超时
func startRun(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, string) {
	runID := logger.RunID(parent)
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx := logger.WithRunID(parent, runID)
	if timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, runID
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, runID
}

// stopped 运行是否应当停止，第二个返回值表示是否为超时
func stopped(ctx context.Context) (bool, bool) {
	err := ctx.Err()
	if err == nil {
		return false, false
	}
	return true, errors.Is(err, context.DeadlineExceeded)
}

// observeRun 记录运行耗时与超时
func observeRun(kind string, started time.Time, timedOut bool) {
	metrics.SyncRunDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	if timedOut {
		metrics.SyncRunsTimedOut.WithLabelValues(kind).Inc()
	}
}

// chunk 按 size 切分
func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
