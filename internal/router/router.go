package router

import (
	"time"

	_ "github.com/chrisbachmaxwell/ebay-sync-app/docs"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/controller"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Controllers 路由依赖的全部控制器
type Controllers struct {
	Webhook  *controller.WebhookController
	Sync     *controller.SyncController
	Listing  *controller.ListingController
	Orders   *controller.OrderMappingController
	Settings *controller.SettingsController
	Health   *controller.HealthController
}

// Options 路由参数
type Options struct {
	AdminToken     string
	ManualCooldown time.Duration // 0 使用各同步类型默认间隔
	Limiter        *middleware.SyncRateLimiter
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctl Controllers, opts Options) {
	limit := func(t middleware.SyncType) gin.HandlerFunc {
		return middleware.SyncRateLimit(opts.Limiter, t, opts.ManualCooldown)
	}

	// 1. 探活与指标
	r.GET("/health", ctl.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	// 访问 /swagger/index.html 查看接口文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 2. 平台推送，签名校验代替认证
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/catalog", ctl.Webhook.Catalog)
		webhooks.POST("/marketplace", ctl.Webhook.Marketplace)
		webhooks.GET("/marketplace", ctl.Webhook.MarketplaceChallenge)
	}

	// 3. 管理接口
	api := r.Group("/api", middleware.AdminAuth(opts.AdminToken))
	{
		sync := api.Group("/sync")
		{
			// POST /api/sync/orders?dry_run=true&from=...&to=...
			sync.POST("/orders", limit(middleware.SyncTypeOrder), ctl.Sync.SyncOrders)
			sync.POST("/inventory", limit(middleware.SyncTypeInventory), ctl.Sync.SyncInventory)
			sync.POST("/prices", limit(middleware.SyncTypePrice), ctl.Sync.SyncPrices)
			sync.POST("/fulfillments", limit(middleware.SyncTypeFulfillment), ctl.Sync.SyncFulfillments)

			sync.GET("/logs", ctl.Sync.Logs)
			sync.GET("/errors", ctl.Sync.Errors)
			sync.GET("/status", ctl.Sync.Status)
		}

		listings := api.Group("/listings")
		{
			listings.POST("/:product_id/publish", limit(middleware.SyncTypeListing), ctl.Listing.Publish)
			listings.POST("/:product_id/end", ctl.Listing.End)
		}

		mappings := api.Group("/mappings")
		{
			mappings.GET("/products", ctl.Listing.Mappings)
			mappings.GET("/orders", ctl.Orders.List)
		}

		api.GET("/settings", ctl.Settings.Get)
		api.PUT("/settings", ctl.Settings.Update)
	}
}
