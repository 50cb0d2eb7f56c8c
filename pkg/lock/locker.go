package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotObtained 在等待期限内未拿到锁
var ErrNotObtained = errors.New("lock not obtained")

// Locker 按业务键串行化
// 同一个 key 同时只有一个持有者，不同 key 互不影响
type Locker interface {
	// Acquire 阻塞直到拿到锁或 ctx 结束，返回释放函数
	Acquire(ctx context.Context, key string) (func(), error)
}

// ==================== LocalLocker 进程内锁 ====================

// LocalLocker 单实例部署使用的进程内键锁
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// lockEntry 锁条目
type lockEntry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*LocalLocker)(nil)

// NewLocalLocker 创建进程内锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*lockEntry)}
}

// Acquire 获取锁
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.unref(key, entry)
		})
	}, nil
}

// unref 无人等待时回收条目
func (l *LocalLocker) unref(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Len 当前活跃 key 数量
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
