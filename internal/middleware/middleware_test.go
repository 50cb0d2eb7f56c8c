package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSyncRateLimiter_Check(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewSyncRateLimiter()
	l.now = func() time.Time { return now }

	assert.True(t, l.Check("k", time.Minute).Allowed)

	now = now.Add(20 * time.Second)
	res := l.Check("k", time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
	assert.False(t, l.CheckOnly("k", time.Minute).Allowed)
	assert.True(t, l.Check("other", time.Minute).Allowed, "不同 key 互不影响")

	now = now.Add(41 * time.Second)
	assert.True(t, l.Check("k", time.Minute).Allowed)

	l.Reset("k")
	assert.True(t, l.Check("k", time.Minute).Allowed)
}

func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "同步冷却中，请 30 秒后重试", formatRetryMessage(29500*time.Millisecond))
	assert.Equal(t, "同步冷却中，请 2 分钟后重试", formatRetryMessage(2*time.Minute))
	assert.Equal(t, "同步冷却中，请 1 分 5 秒后重试", formatRetryMessage(65*time.Second))
}

func TestSyncRateLimit_Middleware(t *testing.T) {
	limiter := NewSyncRateLimiter()
	status := http.StatusOK

	r := gin.New()
	r.POST("/sync/orders", SyncRateLimit(limiter, SyncTypeOrder, time.Hour), func(c *gin.Context) {
		c.Status(status)
	})
	r.POST("/listings/:product_id/publish", SyncRateLimit(limiter, SyncTypeListing, time.Hour), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, path, nil)
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("/sync/orders").Code)
	w := do("/sync/orders")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"sync_type":"order"`)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("/listings/p1/publish").Code)
	assert.Equal(t, http.StatusOK, do("/listings/p2/publish").Code, "按商品维度冷却")
	assert.Equal(t, http.StatusTooManyRequests, do("/listings/p1/publish").Code)

	// 下游失败后允许立即重试
	limiter.Reset(GlobalSyncKey(SyncTypeOrder))
	status = http.StatusInternalServerError
	assert.Equal(t, http.StatusInternalServerError, do("/sync/orders").Code)
	status = http.StatusOK
	assert.Equal(t, http.StatusOK, do("/sync/orders").Code)
}

func TestAdminAuth(t *testing.T) {
	r := gin.New()
	r.GET("/x", AdminAuth("secret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	open := gin.New()
	open.GET("/x", AdminAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/x", nil)
	open.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestAudit_SetsRequestID(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestAudit(logger.NewNop()))
	r.GET("/x", func(c *gin.Context) {
		seen = logger.RunID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", seen)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
