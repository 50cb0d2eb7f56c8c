package dto

import "time"

// ==================== 请求 ====================

// OrderWindow 订单同步时间窗口
// 全部为空时取最近 N 天（order_lookback_days）
type OrderWindow struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
	All  bool       `json:"all,omitempty"` // 不限时间
}

// SyncTriggerReq 手动触发同步
type SyncTriggerReq struct {
	DryRun bool      `form:"dry_run"`
	From   time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	All    bool      `form:"all"`
}

// Window 转换为订单窗口
func (r SyncTriggerReq) Window() OrderWindow {
	w := OrderWindow{All: r.All}
	if !r.From.IsZero() {
		from := r.From
		w.From = &from
	}
	if !r.To.IsZero() {
		to := r.To
		w.To = &to
	}
	return w
}

// EndListingReq 手动下架
type EndListingReq struct {
	Reason string `json:"reason" binding:"omitempty,oneof=delisted deleted"`
}

// ==================== 错误列表 ====================

// ItemError 单条失败
type ItemError struct {
	ID     string `json:"id"` // 订单号 / SKU / 商品 ID
	Reason string `json:"error"`
}

// ErrorList 有上限的失败列表，超出部分只计数
type ErrorList struct {
	Items   []ItemError `json:"items"`
	Dropped int         `json:"dropped"`
	limit   int
}

// NewErrorList 创建失败列表
func NewErrorList(limit int) ErrorList {
	if limit <= 0 {
		limit = 50
	}
	return ErrorList{Items: []ItemError{}, limit: limit}
}

// Add 追加一条失败
func (l *ErrorList) Add(id string, err error) {
	if l.limit == 0 {
		l.limit = 50
	}
	if len(l.Items) >= l.limit {
		l.Dropped++
		return
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	l.Items = append(l.Items, ItemError{ID: id, Reason: reason})
}

// Len 失败总数
func (l *ErrorList) Len() int {
	return len(l.Items) + l.Dropped
}

// Has 是否包含指定 ID
func (l *ErrorList) Has(id string) bool {
	for _, it := range l.Items {
		if it.ID == id {
			return true
		}
	}
	return false
}

// ==================== 运行结果 ====================

// RunMeta 运行元信息
type RunMeta struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Disabled   bool      `json:"disabled"`  // 开关关闭，未执行
	TimedOut   bool      `json:"timed_out"` // 超时提前结束，计数为部分结果
}

// OrderSyncResult 订单同步结果
type OrderSyncResult struct {
	RunMeta
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Errors   ErrorList `json:"errors"`
	Warnings ErrorList `json:"warnings"` // 低置信度去重命中
}

// NewOrderSyncResult 创建订单同步结果
func NewOrderSyncResult(runID string, maxErrors int, dryRun bool) *OrderSyncResult {
	return &OrderSyncResult{
		RunMeta:  RunMeta{RunID: runID, StartedAt: time.Now(), DryRun: dryRun},
		Errors:   NewErrorList(maxErrors),
		Warnings: NewErrorList(maxErrors),
	}
}

// ItemSyncResult 库存/价格同步结果
type ItemSyncResult struct {
	RunMeta
	Checked   int       `json:"checked"`
	Updated   int       `json:"updated"`
	Unchanged int       `json:"unchanged"`
	Ended     int       `json:"ended"`    // 缺货下架
	Relisted  int       `json:"relisted"` // 补货上架
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Errors    ErrorList `json:"errors"`
}

// NewItemSyncResult 创建库存/价格同步结果
func NewItemSyncResult(runID string, maxErrors int, dryRun bool) *ItemSyncResult {
	return &ItemSyncResult{
		RunMeta: RunMeta{RunID: runID, StartedAt: time.Now(), DryRun: dryRun},
		Errors:  NewErrorList(maxErrors),
	}
}

// FulfillmentSyncResult 发货回传结果
type FulfillmentSyncResult struct {
	RunMeta
	Checked   int       `json:"checked"`
	Fulfilled int       `json:"fulfilled"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Errors    ErrorList `json:"errors"`
}

// NewFulfillmentSyncResult 创建发货回传结果
func NewFulfillmentSyncResult(runID string, maxErrors int, dryRun bool) *FulfillmentSyncResult {
	return &FulfillmentSyncResult{
		RunMeta: RunMeta{RunID: runID, StartedAt: time.Now(), DryRun: dryRun},
		Errors:  NewErrorList(maxErrors),
	}
}

// ==================== 刊登结果 ====================

// PublishItem 单个 SKU 的刊登结果
type PublishItem struct {
	SKU       string `json:"sku"`
	VariantID string `json:"variant_id"`
	Status    string `json:"status"` // inventory_only / draft / active / ended / error / skipped
	OfferID   string `json:"offer_id,omitempty"`
	ListingID string `json:"listing_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PublishResult 商品刊登结果
type PublishResult struct {
	ProductID string        `json:"product_id"`
	Status    string        `json:"status"`
	Items     []PublishItem `json:"items"`
}

// ==================== 查询 ====================

// PageQuery 分页查询
type PageQuery struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=20" binding:"min=1,max=200"`
}

// ProductMappingQuery 商品映射列表查询
type ProductMappingQuery struct {
	PageQuery
	ProductID string `form:"product_id"`
	Status    string `form:"status" binding:"omitempty,oneof=inventory_only draft active ended error"`
}

// OrderMappingQuery 订单映射列表查询
type OrderMappingQuery struct {
	PageQuery
	Status        string `form:"status" binding:"omitempty,oneof=synced fulfilled failed"`
	LowConfidence *bool  `form:"low_confidence"`
}

// SyncLogQuery 同步日志查询
type SyncLogQuery struct {
	PageQuery
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	Status     string `form:"status" binding:"omitempty,oneof=success failed"`
	RunID      string `form:"run_id"`
}

// ErrorPatternQuery 失败聚合查询
type ErrorPatternQuery struct {
	Hours int `form:"hours,default=24" binding:"min=1,max=720"`
	Limit int `form:"limit,default=20" binding:"min=1,max=200"`
}

// ListResp 分页列表响应
type ListResp struct {
	Total int64       `json:"total"`
	List  interface{} `json:"list"`
}

// SyncStatusResp 同步状态概览
type SyncStatusResp struct {
	ProductMappings map[string]int64      `json:"product_mappings"`
	OrderMappings   map[string]int64      `json:"order_mappings"`
	WebhookEvents   map[string]int64      `json:"webhook_events"`
	QueueDepth      int                   `json:"queue_depth"`
	Tasks           map[string]TaskStatus `json:"tasks"`
}

// TaskStatus 定时任务状态
type TaskStatus struct {
	Enabled bool       `json:"enabled"`
	Running bool       `json:"running"`
	LastRun *time.Time `json:"last_run,omitempty"`
	LastErr string     `json:"last_error,omitempty"`
}
