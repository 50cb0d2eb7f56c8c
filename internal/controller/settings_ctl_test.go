package controller

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/service"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSettings(t *testing.T) *gin.Engine {
	db := setupTestDB(t)
	defaults := service.RunConfig{PollIntervalMinutes: 5}
	svc := service.NewSettingsService(repository.NewSettingRepository(db), defaults, logger.NewNop())
	ctl := NewSettingsController(svc)

	r := gin.New()
	r.GET("/api/settings", ctl.Get)
	r.PUT("/api/settings", ctl.Update)
	return r
}

func TestSettingsController_GetAndUpdate(t *testing.T) {
	r := setupSettings(t)

	w := doJSON(r, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"poll_interval_minutes":"5"`)

	w = doJSON(r, http.MethodPut, "/api/settings", map[string]string{
		model.SettingOrderSyncEnabled:    "false",
		model.SettingPollIntervalMinutes: "15",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"order_sync_enabled":"false"`)
	assert.Contains(t, w.Body.String(), `"poll_interval_minutes":"15"`)
}

func TestSettingsController_RejectsInvalid(t *testing.T) {
	r := setupSettings(t)

	cases := []map[string]string{
		{"no_such_key": "1"},
		{model.SettingPollIntervalMinutes: "0"},
		{model.SettingAutoPublish: "maybe"},
		{},
	}
	for _, body := range cases {
		w := doJSON(r, http.MethodPut, "/api/settings", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	w := doJSON(r, http.MethodGet, "/api/settings", nil)
	assert.Contains(t, w.Body.String(), `"poll_interval_minutes":"5"`, "非法修改整体拒绝")
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthController(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthController(fakePinger{}).Health)
	r.GET("/health-down", NewHealthController(fakePinger{err: errors.New("refused")}).Health)

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(r, http.MethodGet, "/health-down", nil).Code)
}
