package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结果标签
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeUnchanged = "unchanged"
)

var (
	// SyncItemsTotal 单条同步结果，kind: order / inventory / price / listing / fulfillment
	SyncItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_items_total",
		Help: "Total number of items processed by sync runs",
	}, []string{"kind", "outcome"})

	// SyncRunDuration 单次同步耗时
	SyncRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	// SyncRunsTimedOut 超时结束的同步次数
	SyncRunsTimedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_timed_out_total",
		Help: "Total number of sync runs stopped by the run timeout",
	}, []string{"kind"})

	// DedupLowConfidenceTotal 仅靠备注文本命中的去重次数
	DedupLowConfidenceTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_dedup_low_confidence_total",
		Help: "Total number of orders deduplicated only by the textual fallback",
	})

	// WebhookEventsTotal 事件接收结果，result: queued / duplicate / rejected / queue_full / processed / failed
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of webhook events by source and result",
	}, []string{"source", "result"})

	// EventQueueDepth 队列积压
	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_queue_depth",
		Help: "Number of events waiting in the dispatcher queue",
	})

	// HTTPRequestDuration 接口耗时
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// ObserveItem 记录单条结果
func ObserveItem(kind, outcome string) {
	SyncItemsTotal.WithLabelValues(kind, outcome).Inc()
}
