package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 写入节流，两次写入之间至少间隔 delay
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer 创建节流器，delay <= 0 时不限速
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Wait 等待下一个写入窗口
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
