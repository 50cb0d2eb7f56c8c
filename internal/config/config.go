package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Event       EventConfig       `mapstructure:"event"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ManualCooldown  time.Duration `mapstructure:"manual_cooldown"` // 手动触发冷却
	AdminToken      string        `mapstructure:"admin_token"`     // 管理接口 Bearer token，为空不校验
}

// LogConfig 日志配置
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Encoding  string `mapstructure:"encoding"`   // json / console
	GormLevel string `mapstructure:"gorm_level"` // silent / error / warn / info
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig Redis 配置，Addr 为空时使用进程内锁
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// CatalogConfig Catalog 平台配置
type CatalogConfig struct {
	ShopDomain    string        `mapstructure:"shop_domain" validate:"required"`
	APIVersion    string        `mapstructure:"api_version"`
	AccessToken   string        `mapstructure:"access_token"`
	WebhookSecret string        `mapstructure:"webhook_secret" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	ProxyURL      string        `mapstructure:"proxy_url"`
}

// MarketplaceConfig Marketplace 平台配置
type MarketplaceConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	MarketplaceID     string        `mapstructure:"marketplace_id"`
	ContentLanguage   string        `mapstructure:"content_language"`
	AccessToken       string        `mapstructure:"access_token"`
	WebhookSecret     string        `mapstructure:"webhook_secret" validate:"required"`
	SignatureHeader   string        `mapstructure:"signature_header"`
	VerificationToken string        `mapstructure:"verification_token"` // 端点所有权校验
	EndpointURL       string        `mapstructure:"endpoint_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	ProxyURL          string        `mapstructure:"proxy_url"`
}

// SyncConfig 同步运行默认值，可被 settings 表覆盖
type SyncConfig struct {
	CatalogBatchSize  int           `mapstructure:"catalog_batch_size" validate:"gt=0,lte=250"`
	OrderPageSize     int           `mapstructure:"order_page_size" validate:"gt=0,lte=200"`
	OrderLookbackDays int           `mapstructure:"order_lookback_days" validate:"gt=0"`
	WriteDelay        time.Duration `mapstructure:"write_delay"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	MaxErrors         int           `mapstructure:"max_errors" validate:"gt=0"`
	Currency          string        `mapstructure:"currency" validate:"len=3"`
	Condition         string        `mapstructure:"condition"`
	DedupTagPrefix    string        `mapstructure:"dedup_tag_prefix" validate:"required"`
}

// ScheduleConfig 定时轮询配置（cron 表达式，含秒）
type ScheduleConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RunOnStart      bool   `mapstructure:"run_on_start"`
	OrderCron       string `mapstructure:"order_cron"`
	InventoryCron   string `mapstructure:"inventory_cron"`
	PriceCron       string `mapstructure:"price_cron"`
	FulfillmentCron string `mapstructure:"fulfillment_cron"`
}

// EventConfig 事件队列配置
type EventConfig struct {
	QueueSize      int           `mapstructure:"queue_size" validate:"gt=0"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"gt=0"`
}

// setDefaults 内置默认值
// 所有 key 都需要在这里登记，否则环境变量覆盖不会生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.manual_cooldown", time.Minute)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.gorm_level", "warn")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("catalog.shop_domain", "")
	v.SetDefault("catalog.api_version", "2024-10")
	v.SetDefault("catalog.access_token", "")
	v.SetDefault("catalog.webhook_secret", "")
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.proxy_url", "")

	v.SetDefault("marketplace.base_url", "https://api.ebay.com")
	v.SetDefault("marketplace.marketplace_id", "EBAY_US")
	v.SetDefault("marketplace.content_language", "en-US")
	v.SetDefault("marketplace.access_token", "")
	v.SetDefault("marketplace.webhook_secret", "")
	v.SetDefault("marketplace.signature_header", "X-Ebay-Signature")
	v.SetDefault("marketplace.verification_token", "")
	v.SetDefault("marketplace.endpoint_url", "")
	v.SetDefault("marketplace.timeout", 30*time.Second)
	v.SetDefault("marketplace.max_retries", 3)
	v.SetDefault("marketplace.proxy_url", "")

	v.SetDefault("sync.catalog_batch_size", 250)
	v.SetDefault("sync.order_page_size", 50)
	v.SetDefault("sync.order_lookback_days", 7)
	v.SetDefault("sync.write_delay", 500*time.Millisecond)
	v.SetDefault("sync.run_timeout", 10*time.Minute)
	v.SetDefault("sync.max_errors", 50)
	v.SetDefault("sync.currency", "USD")
	v.SetDefault("sync.condition", "USED_EXCELLENT")
	v.SetDefault("sync.dedup_tag_prefix", "ebay-sync-")

	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("schedule.order_cron", "0 * * * * *")
	v.SetDefault("schedule.inventory_cron", "0 */15 * * * *")
	v.SetDefault("schedule.price_cron", "0 7,37 * * * *")
	v.SetDefault("schedule.fulfillment_cron", "0 */10 * * * *")

	v.SetDefault("event.queue_size", 256)
	v.SetDefault("event.enqueue_timeout", 2*time.Second)
	v.SetDefault("event.handler_timeout", 2*time.Minute)
}

// Load 加载配置
// 优先级：环境变量 SYNC_* > 配置文件 > 内置默认值
// configPath 为空时只使用默认值与环境变量
func Load(configPath string) (*Config, error) {
	// .env 可选，不存在不报错
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
