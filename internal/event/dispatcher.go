package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/metrics"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull 队列已满，调用方应返回 503 让平台稍后重投
	ErrQueueFull = errors.New("event queue full")
	// ErrDispatcherClosed 已停止接收
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

// Handler 事件处理
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc 函数适配
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Envelope 入队单元
type Envelope struct {
	ID         string
	InboxID    int64 // webhook_events.id，0 表示非推送来源
	Source     string
	Event      Event
	ReceivedAt time.Time
}

// Options 队列参数
type Options struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	HandlerTimeout time.Duration
}

// Dispatcher 有界队列 + 单消费者
// 事件按入队顺序逐个处理，同 key 的事件天然保序
type Dispatcher struct {
	queue   chan Envelope
	handler Handler
	inbox   repository.WebhookEventRepository
	opts    Options
	log     logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher 创建事件分发器，inbox 可为 nil
func NewDispatcher(handler Handler, inbox repository.WebhookEventRepository, opts Options, log logger.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 2 * time.Minute
	}
	return &Dispatcher{
		queue:   make(chan Envelope, opts.QueueSize),
		handler: handler,
		inbox:   inbox,
		opts:    opts,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Enqueue 入队，队列满时最多等待 EnqueueTimeout
func (d *Dispatcher) Enqueue(ctx context.Context, env Envelope) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.ReceivedAt.IsZero() {
		env.ReceivedAt = time.Now()
	}

	select {
	case d.queue <- env:
		metrics.EventQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
	}

	if d.opts.EnqueueTimeout <= 0 {
		return ErrQueueFull
	}
	timer := time.NewTimer(d.opts.EnqueueTimeout)
	defer timer.Stop()
	select {
	case d.queue <- env:
		metrics.EventQueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ErrQueueFull
	}
}

// Depth 当前积压
func (d *Dispatcher) Depth() int {
	return len(d.queue)
}

// Run 消费循环，ctx 取消后停止接收并处理完积压事件
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	d.log.Infof(ctx, "[EventDispatcher] 事件分发启动，队列容量 %d", cap(d.queue))

	for {
		select {
		case env := <-d.queue:
			d.process(context.WithoutCancel(ctx), env)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

// Wait 等待 Run 退出
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) drain(ctx context.Context) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	n := len(d.queue)
	if n > 0 {
		d.log.Infof(ctx, "[EventDispatcher] 停止接收，处理剩余 %d 个事件", n)
	}
	for {
		select {
		case env := <-d.queue:
			d.process(ctx, env)
		default:
			d.log.Infof(ctx, "[EventDispatcher] 事件分发已停止")
			return
		}
	}
}

func (d *Dispatcher) process(parent context.Context, env Envelope) {
	metrics.EventQueueDepth.Set(float64(len(d.queue)))
	ctx, cancel := context.WithTimeout(logger.WithEventID(parent, env.ID), d.opts.HandlerTimeout)
	defer cancel()

	started := time.Now()
	err := d.safeHandle(ctx, env.Event)

	status, errMsg, result := model.WebhookStatusProcessed, "", metrics.OutcomeSuccess
	if err != nil {
		status, errMsg, result = model.WebhookStatusFailed, err.Error(), metrics.OutcomeFailed
		d.log.Errorf(ctx, "[EventDispatcher] 事件 %s (%s) 处理失败: %v", env.Event.Kind(), env.Event.Key(), err)
	} else {
		d.log.Infof(ctx, "[EventDispatcher] 事件 %s (%s) 处理完成，耗时 %v", env.Event.Kind(), env.Event.Key(), time.Since(started))
	}
	metrics.WebhookEventsTotal.WithLabelValues(env.Source, result).Inc()

	if d.inbox != nil && env.InboxID > 0 {
		if markErr := d.inbox.MarkStatus(ctx, env.InboxID, status, errMsg); markErr != nil {
			d.log.Warnf(ctx, "[EventDispatcher] 更新收件箱状态失败 id=%d: %v", env.InboxID, markErr)
		}
	}
}

// safeHandle 单个事件 panic 不影响消费循环
func (d *Dispatcher) safeHandle(ctx context.Context, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.handler.Handle(ctx, e)
}
