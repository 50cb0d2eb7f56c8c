package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 250, cfg.Sync.CatalogBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.WriteDelay)
	assert.Equal(t, 10*time.Minute, cfg.Sync.RunTimeout)
	assert.Equal(t, "ebay-sync-", cfg.Sync.DedupTagPrefix)
	assert.Equal(t, 256, cfg.Event.QueueSize)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: "9090"
sync:
  write_delay: 1s
  order_lookback_days: 3
database:
  dsn: "host=localhost dbname=sync"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SYNC_SYNC_ORDER_LOOKBACK_DAYS", "14")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Sync.WriteDelay)
	assert.Equal(t, 14, cfg.Sync.OrderLookbackDays, "环境变量优先于配置文件")
	assert.Equal(t, "host=localhost dbname=sync", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "缺少 DSN 与 webhook secret 时应校验失败")

	cfg.Database.DSN = "host=localhost"
	cfg.Catalog.ShopDomain = "demo.myshopify.com"
	cfg.Catalog.WebhookSecret = "s1"
	cfg.Marketplace.WebhookSecret = "s2"
	assert.NoError(t, cfg.Validate())
}
