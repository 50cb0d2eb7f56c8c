package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker 多实例部署使用的分布式键锁
type RedisLocker struct {
	client    *redislock.Client
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
	onRelease func(key string, err error)
	onRefresh func(key string, err error)
}

var _ Locker = (*RedisLocker)(nil)

// RedisOptions 分布式锁参数
type RedisOptions struct {
	Prefix    string        // key 前缀，默认 "sync-lock:"
	TTL       time.Duration // 锁过期时间，默认 30s
	RetryWait time.Duration // 重试间隔，默认 100ms
	OnRelease func(key string, err error)
	OnRefresh func(key string, err error) // 续期失败回调，锁可能已被他人获得
}

// NewRedisLocker 创建分布式锁
func NewRedisLocker(rdb *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "sync-lock:"
	}
	if opts.TTL == 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryWait == 0 {
		opts.RetryWait = 100 * time.Millisecond
	}
	return &RedisLocker{
		client:    redislock.New(rdb),
		prefix:    opts.Prefix,
		ttl:       opts.TTL,
		retryWait: opts.RetryWait,
		onRelease: opts.OnRelease,
		onRefresh: opts.OnRefresh,
	}
}

// Acquire 获取锁
// ctx 无截止时间时，最多等待一个 TTL
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	lk, err := l.client.Obtain(ctx, fullKey, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retryWait),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}

	// 持有期间每 TTL/3 续期一次，临界区耗时不受 TTL 限制
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, lk, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(key, lk)
		})
	}, nil
}

func (l *RedisLocker) keepAlive(key string, lk *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := lk.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				if l.onRefresh != nil {
					l.onRefresh(key, err)
				}
				if errors.Is(err, redislock.ErrNotObtained) {
					// 锁已过期或被抢占，续期无意义
					return
				}
			}
		}
	}
}

func (l *RedisLocker) release(key string, lk *redislock.Lock) {
	// 释放不受业务 ctx 取消影响
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := lk.Release(releaseCtx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		err = nil
	}
	if l.onRelease != nil {
		l.onRelease(key, err)
	}
}
