package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ==================== SyncRateLimiter 手动触发冷却 ====================

// SyncRateLimiter 手动同步冷却器
// 同一 key 在冷却期内只放行一次，避免运维反复触发压垮两端 API 配额
type SyncRateLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// NewSyncRateLimiter 创建冷却器
func NewSyncRateLimiter() *SyncRateLimiter {
	return &SyncRateLimiter{now: time.Now}
}

var globalLimiter = NewSyncRateLimiter()

// GetLimiter 进程级默认实例
func GetLimiter() *SyncRateLimiter {
	return globalLimiter
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Check 检查并占用一次执行机会
func (r *SyncRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	if !entry.lastTime.IsZero() {
		if elapsed := now.Sub(entry.lastTime); elapsed < interval {
			return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
		}
	}
	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// CheckOnly 仅检查，不占用
func (r *SyncRateLimiter) CheckOnly(key string, interval time.Duration) CheckResult {
	actual, ok := r.locks.Load(key)
	if !ok {
		return CheckResult{Allowed: true}
	}
	entry := actual.(*lockEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if elapsed := r.now().Sub(entry.lastTime); elapsed < interval {
		return CheckResult{Allowed: false, RetryAfter: interval - elapsed}
	}
	return CheckResult{Allowed: true}
}

// Reset 清除冷却，触发失败时调用，允许立即重试
func (r *SyncRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== Key ====================

// SyncType 手动触发类型
type SyncType string

const (
	SyncTypeOrder       SyncType = "order"
	SyncTypeInventory   SyncType = "inventory"
	SyncTypePrice       SyncType = "price"
	SyncTypeListing     SyncType = "listing"
	SyncTypeFulfillment SyncType = "fulfillment"
)

// ProductSyncKey 商品级 key
func ProductSyncKey(productID string, syncType SyncType) string {
	return fmt.Sprintf("product:%s:%s", productID, syncType)
}

// GlobalSyncKey 全局 key
func GlobalSyncKey(syncType SyncType) string {
	return fmt.Sprintf("global:%s", syncType)
}

// DefaultIntervals 默认冷却间隔
var DefaultIntervals = map[SyncType]time.Duration{
	SyncTypeOrder:       time.Minute,
	SyncTypeInventory:   2 * time.Minute,
	SyncTypePrice:       2 * time.Minute,
	SyncTypeListing:     30 * time.Second,
	SyncTypeFulfillment: time.Minute,
}

// GetInterval 获取默认间隔
func GetInterval(syncType SyncType) time.Duration {
	if interval, ok := DefaultIntervals[syncType]; ok {
		return interval
	}
	return time.Minute
}
