package controller

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/event"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/metrics"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Catalog 推送头
const (
	HeaderCatalogSignature = "X-Shopify-Hmac-Sha256"
	HeaderCatalogTopic     = "X-Shopify-Topic"
	HeaderCatalogDelivery  = "X-Shopify-Webhook-Id"
)

const maxWebhookBody = 2 << 20

// EventQueue 事件入队
type EventQueue interface {
	Enqueue(ctx context.Context, env event.Envelope) error
}

// WebhookOptions Marketplace 推送相关配置
type WebhookOptions struct {
	MarketSignatureHeader string
	VerificationToken     string
	EndpointURL           string
}

// WebhookController 平台推送入口
// 校验签名 -> 记录收件箱 -> 入队，处理在分发器中异步完成
type WebhookController struct {
	verifier *event.Verifier
	inbox    repository.WebhookEventRepository
	queue    EventQueue
	opts     WebhookOptions
	log      logger.Logger
}

// NewWebhookController 创建推送控制器
func NewWebhookController(verifier *event.Verifier, inbox repository.WebhookEventRepository, queue EventQueue, opts WebhookOptions, log logger.Logger) *WebhookController {
	if opts.MarketSignatureHeader == "" {
		opts.MarketSignatureHeader = "X-Ebay-Signature"
	}
	return &WebhookController{verifier: verifier, inbox: inbox, queue: queue, opts: opts, log: log}
}

// Catalog 接收 Catalog 推送
// @Summary Catalog webhook
// @Tags Webhook
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "签名无效"
// @Failure 503 {object} map[string]interface{} "队列已满"
// @Router /webhooks/catalog [post]
func (h *WebhookController) Catalog(c *gin.Context) {
	h.receive(c, model.EventSourceCatalog)
}

// Marketplace 接收 Marketplace 通知
// @Summary Marketplace notification
// @Tags Webhook
// @Router /webhooks/marketplace [post]
func (h *WebhookController) Marketplace(c *gin.Context) {
	h.receive(c, model.EventSourceMarketplace)
}

// MarketplaceChallenge 端点所有权校验
// @Summary Marketplace 端点校验
// @Tags Webhook
// @Param challenge_code query string true "challenge code"
// @Router /webhooks/marketplace [get]
func (h *WebhookController) MarketplaceChallenge(c *gin.Context) {
	code := c.Query("challenge_code")
	if code == "" {
		fail(c, http.StatusBadRequest, "缺少 challenge_code")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"challengeResponse": event.ChallengeResponse(code, h.opts.VerificationToken, h.opts.EndpointURL),
	})
}

func (h *WebhookController) receive(c *gin.Context, source string) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, "读取请求体失败")
		return
	}

	signature, topic, deliveryID := h.envelope(c, source, body)

	if err := h.verifier.Verify(source, body, signature); err != nil {
		h.log.Warnf(ctx, "[Webhook] %s 推送签名校验失败 topic=%s delivery=%s", source, topic, deliveryID)
		h.reject(ctx, source, topic, deliveryID, body)
		metrics.WebhookEventsTotal.WithLabelValues(source, model.WebhookStatusRejected).Inc()
		fail(c, http.StatusUnauthorized, "签名无效")
		return
	}

	evt, parseErr := event.Parse(source, topic, body)
	row := &model.WebhookEvent{
		Source:         source,
		DeliveryID:     deliveryID,
		Topic:          topic,
		Payload:        jsonPayload(body),
		SignatureValid: true,
		Status:         model.WebhookStatusQueued,
	}
	switch {
	case errors.Is(parseErr, event.ErrUnsupportedTopic):
		row.Status = model.WebhookStatusIgnored
	case parseErr != nil:
		row.Status, row.Error = model.WebhookStatusFailed, parseErr.Error()
	}

	duplicate, err := h.inbox.Record(ctx, row)
	if err != nil {
		h.log.Errorf(ctx, "[Webhook] 写入收件箱失败 %s/%s: %v", source, deliveryID, err)
		fail(c, http.StatusInternalServerError, "写入收件箱失败")
		return
	}
	if duplicate {
		h.log.Infof(ctx, "[Webhook] 重复投递 %s/%s，忽略", source, deliveryID)
		metrics.WebhookEventsTotal.WithLabelValues(source, model.WebhookStatusDuplicate).Inc()
		ok(c, "duplicate", gin.H{"delivery_id": deliveryID})
		return
	}

	if parseErr != nil {
		// 已确认接收，平台重投也无法修复
		if row.Status == model.WebhookStatusFailed {
			h.log.Warnf(ctx, "[Webhook] 推送解析失败 %s/%s topic=%s: %v", source, deliveryID, topic, parseErr)
		}
		metrics.WebhookEventsTotal.WithLabelValues(source, row.Status).Inc()
		ok(c, row.Status, gin.H{"delivery_id": deliveryID})
		return
	}

	env := event.Envelope{
		ID:         deliveryID,
		InboxID:    row.ID,
		Source:     source,
		Event:      evt,
		ReceivedAt: time.Now(),
	}
	if err := h.queue.Enqueue(ctx, env); err != nil {
		h.log.Warnf(ctx, "[Webhook] 入队失败 %s/%s: %v", source, deliveryID, err)
		if delErr := h.inbox.Delete(ctx, row.ID); delErr != nil {
			h.log.Errorf(ctx, "[Webhook] 撤销收件箱记录失败 id=%d: %v", row.ID, delErr)
		}
		metrics.WebhookEventsTotal.WithLabelValues(source, "queue_full").Inc()
		c.Header("Retry-After", "30")
		fail(c, http.StatusServiceUnavailable, "事件队列繁忙，请稍后重试")
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(source, model.WebhookStatusQueued).Inc()
	ok(c, "queued", gin.H{"delivery_id": deliveryID})
}

// envelope 取签名、topic 与投递 ID
// 缺少投递 ID 时以请求体摘要代替，同一内容的重投仍可去重
func (h *WebhookController) envelope(c *gin.Context, source string, body []byte) (signature, topic, deliveryID string) {
	switch source {
	case model.EventSourceCatalog:
		signature = c.GetHeader(HeaderCatalogSignature)
		topic = c.GetHeader(HeaderCatalogTopic)
		deliveryID = c.GetHeader(HeaderCatalogDelivery)
	case model.EventSourceMarketplace:
		signature = c.GetHeader(h.opts.MarketSignatureHeader)
		topic = event.MarketplaceTopic(body)
		deliveryID = event.MarketplaceDeliveryID(body)
	}
	if deliveryID == "" {
		sum := sha256.Sum256(body)
		deliveryID = "sha256:" + hex.EncodeToString(sum[:])
	}
	return signature, topic, deliveryID
}

// reject 记录签名失败的投递，投递 ID 不可信，使用独立 ID 避免占用真实投递
func (h *WebhookController) reject(ctx context.Context, source, topic, claimedID string, body []byte) {
	row := &model.WebhookEvent{
		Source:     source,
		DeliveryID: "rejected:" + uuid.NewString(),
		Topic:      topic,
		Status:     model.WebhookStatusRejected,
		Error:      "invalid signature, claimed delivery " + claimedID,
	}
	if len(body) <= 64<<10 {
		row.Payload = jsonPayload(body)
	}
	if _, err := h.inbox.Record(ctx, row); err != nil {
		h.log.Warnf(ctx, "[Webhook] 记录拒绝事件失败: %v", err)
	}
}

// jsonPayload 非法 JSON 不入库
func jsonPayload(body []byte) datatypes.JSON {
	if !json.Valid(body) {
		return nil
	}
	return datatypes.JSON(body)
}
