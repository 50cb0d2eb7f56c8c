package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/controller"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	InitRoutes(r, Controllers{
		Webhook:  controller.NewWebhookController(nil, nil, nil, controller.WebhookOptions{}, nil),
		Sync:     controller.NewSyncController(nil, nil, controller.SyncStatusSources{}),
		Listing:  controller.NewListingController(nil),
		Orders:   controller.NewOrderMappingController(nil),
		Settings: controller.NewSettingsController(nil),
		Health:   controller.NewHealthController(nil),
	}, Options{AdminToken: "t0ken", Limiter: middleware.NewSyncRateLimiter()})
	return r
}

func TestInitRoutes_PublicEndpoints(t *testing.T) {
	r := setupRouter()

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestInitRoutes_SwaggerDoc(t *testing.T) {
	r := setupRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/sync/orders")
	assert.Contains(t, w.Body.String(), "AdminToken")
}

func TestInitRoutes_AdminRequiresToken(t *testing.T) {
	r := setupRouter()

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/sync/orders"},
		{http.MethodPost, "/api/sync/inventory"},
		{http.MethodPost, "/api/sync/prices"},
		{http.MethodPost, "/api/sync/fulfillments"},
		{http.MethodGet, "/api/sync/logs"},
		{http.MethodGet, "/api/sync/errors"},
		{http.MethodGet, "/api/sync/status"},
		{http.MethodPost, "/api/listings/p1/publish"},
		{http.MethodPost, "/api/listings/p1/end"},
		{http.MethodGet, "/api/mappings/products"},
		{http.MethodGet, "/api/mappings/orders"},
		{http.MethodGet, "/api/settings"},
		{http.MethodPut, "/api/settings"},
	}
	for _, rt := range routes {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(rt.method, rt.path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, rt.method+" "+rt.path)
	}
}
