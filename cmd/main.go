package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/config"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/controller"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/event"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/middleware"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/repository"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/router"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/service"
	"github.com/chrisbachmaxwell/ebay-sync-app/internal/task"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/database"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/ebay"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/lock"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/logger"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/net"
	"github.com/chrisbachmaxwell/ebay-sync-app/pkg/shopify"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// @title Catalog ↔ Marketplace 同步服务 API
// @version 1.0
// @description Shopify 商品刊登到 eBay，eBay 订单导入 Shopify，库存、价格与物流回传对账
// @BasePath /
// @securityDefinitions.apikey AdminToken
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", getEnv("SYNC_CONFIG", ""), "配置文件路径，为空时只读取环境变量")
	flag.Parse()

	// 1. 配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	// 2. 日志
	lg, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	ctx := context.Background()

	// 3. 数据库
	db, err := database.InitDB(database.Options{
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Logger:          logger.NewGormLogger(lg, logger.ParseGormLevel(cfg.Log.GormLevel)),
	}, model.AllModels()...)
	if err != nil {
		lg.Errorf(ctx, "[Main] %v", err)
		os.Exit(1)
	}

	// 4. 组装依赖
	app, err := newApp(cfg, db, lg)
	if err != nil {
		lg.Errorf(ctx, "[Main] 初始化失败: %v", err)
		os.Exit(1)
	}

	// 5. 启动
	if err := app.run(ctx); err != nil {
		lg.Errorf(ctx, "[Main] %v", err)
		os.Exit(1)
	}
}

// ==================== 依赖容器 ====================

// App 进程内全部组件
type App struct {
	cfg        *config.Config
	log        logger.Logger
	db         *gorm.DB
	redis      *redis.Client
	dispatcher *event.Dispatcher
	tasks      *task.TaskManager
	engine     *gin.Engine
}

// Repositories 仓库集合
type Repositories struct {
	Products repository.ProductMappingRepository
	Orders   repository.OrderMappingRepository
	SyncLogs repository.SyncLogRepository
	Settings repository.SettingRepository
	Webhooks repository.WebhookEventRepository
}

// Services 服务集合
type Services struct {
	Settings    *service.SettingsService
	SyncLog     *service.SyncLogService
	Listing     *service.ListingService
	Order       *service.OrderService
	Inventory   *service.InventoryService
	Price       *service.PriceService
	Fulfillment *service.FulfillmentService
}

func newApp(cfg *config.Config, db *gorm.DB, lg logger.Logger) (*App, error) {
	app := &App{cfg: cfg, log: lg, db: db}

	// -------- 键锁 --------
	locker, err := app.initLocker()
	if err != nil {
		return nil, err
	}

	// -------- 平台客户端 --------
	catalog := shopify.NewClient(shopify.Config{
		ShopDomain: cfg.Catalog.ShopDomain,
		APIVersion: cfg.Catalog.APIVersion,
		Tokens:     net.StaticToken(cfg.Catalog.AccessToken),
		Timeout:    cfg.Catalog.Timeout,
		MaxRetries: cfg.Catalog.MaxRetries,
		ProxyURL:   cfg.Catalog.ProxyURL,
	})
	market := ebay.NewClient(ebay.Config{
		BaseURL:         cfg.Marketplace.BaseURL,
		MarketplaceID:   cfg.Marketplace.MarketplaceID,
		ContentLanguage: cfg.Marketplace.ContentLanguage,
		Tokens:          net.StaticToken(cfg.Marketplace.AccessToken),
		Timeout:         cfg.Marketplace.Timeout,
		MaxRetries:      cfg.Marketplace.MaxRetries,
		ProxyURL:        cfg.Marketplace.ProxyURL,
	})

	// -------- Repo 层 --------
	repos := &Repositories{
		Products: repository.NewProductMappingRepository(db),
		Orders:   repository.NewOrderMappingRepository(db),
		SyncLogs: repository.NewSyncLogRepository(db),
		Settings: repository.NewSettingRepository(db),
		Webhooks: repository.NewWebhookEventRepository(db),
	}

	// -------- 业务服务 --------
	svc := &Services{}
	svc.Settings = service.NewSettingsService(repos.Settings, service.DefaultRunConfig(cfg.Sync), lg)
	svc.SyncLog = service.NewSyncLogService(repos.SyncLogs, lg)
	svc.Listing = service.NewListingService(catalog, market, repos.Products, svc.Settings, svc.SyncLog, locker, lg)
	svc.Order = service.NewOrderService(catalog, market, repos.Orders, repos.Products, svc.Settings, svc.SyncLog, locker, lg)
	svc.Inventory = service.NewInventoryService(catalog, market, repos.Products, svc.Listing, svc.Settings, svc.SyncLog, locker, lg)
	svc.Price = service.NewPriceService(catalog, market, repos.Products, svc.Settings, svc.SyncLog, locker, lg)
	svc.Fulfillment = service.NewFulfillmentService(catalog, market, repos.Orders, svc.Settings, svc.SyncLog, locker, lg)

	// -------- 事件分发 --------
	eventRouter := event.NewRouter(svc.Listing, svc.Inventory, svc.Price, svc.Fulfillment, svc.Order, catalog, svc.Settings, lg)
	app.dispatcher = event.NewDispatcher(eventRouter, repos.Webhooks, event.Options{
		QueueSize:      cfg.Event.QueueSize,
		EnqueueTimeout: cfg.Event.EnqueueTimeout,
		HandlerTimeout: cfg.Event.HandlerTimeout,
	}, lg)

	// -------- 定时任务 --------
	app.tasks = task.NewTaskManager(&task.TaskManagerDeps{
		OrderService:       svc.Order,
		InventoryService:   svc.Inventory,
		PriceService:       svc.Price,
		FulfillmentService: svc.Fulfillment,
		SettingsService:    svc.Settings,
		Logger:             lg,
	}, task.ConfigFrom(cfg.Schedule, cfg.Sync.RunTimeout))

	// -------- HTTP --------
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 SQL DB 失败: %w", err)
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestAudit(lg))
	router.InitRoutes(engine, router.Controllers{
		Webhook: controller.NewWebhookController(
			event.NewVerifier(cfg.Catalog.WebhookSecret, cfg.Marketplace.WebhookSecret),
			repos.Webhooks,
			app.dispatcher,
			controller.WebhookOptions{
				MarketSignatureHeader: cfg.Marketplace.SignatureHeader,
				VerificationToken:     cfg.Marketplace.VerificationToken,
				EndpointURL:           cfg.Marketplace.EndpointURL,
			},
			lg,
		),
		Sync: controller.NewSyncController(app.tasks, svc.SyncLog, controller.SyncStatusSources{
			Products: repos.Products,
			Orders:   repos.Orders,
			Webhooks: repos.Webhooks,
			Queue:    app.dispatcher,
		}),
		Listing:  controller.NewListingController(svc.Listing),
		Orders:   controller.NewOrderMappingController(svc.Order),
		Settings: controller.NewSettingsController(svc.Settings),
		Health:   controller.NewHealthController(sqlDB),
	}, router.Options{
		AdminToken:     cfg.Server.AdminToken,
		ManualCooldown: cfg.Server.ManualCooldown,
		Limiter:        middleware.GetLimiter(),
	})
	app.engine = engine

	return app, nil
}

// initLocker 配置了 Redis 时使用分布式锁，否则进程内锁
func (a *App) initLocker() (lock.Locker, error) {
	if a.cfg.Redis.Addr == "" {
		a.log.Infof(context.Background(), "[Main] 未配置 Redis，使用进程内键锁（仅支持单实例部署）")
		return lock.NewLocalLocker(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return lock.NewRedisLocker(a.redis, lock.RedisOptions{
		TTL: a.cfg.Redis.LockTTL,
		OnRelease: func(key string, err error) {
			if err != nil {
				a.log.Warnf(context.Background(), "[Main] 释放锁 %s 失败: %v", key, err)
			}
		},
		OnRefresh: func(key string, err error) {
			a.log.Errorf(context.Background(), "[Main] 锁 %s 续期失败: %v", key, err)
		},
	}), nil
}

// ==================== 服务启动 ====================

// run 启动分发器、定时任务与 HTTP 服务，收到退出信号后按序关闭
func (a *App) run(ctx context.Context) error {
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go a.dispatcher.Run(dispatchCtx)

	if err := a.tasks.Start(); err != nil {
		return fmt.Errorf("启动定时任务失败: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Infof(ctx, "[Main] 服务启动在 :%s", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		a.log.Infof(ctx, "[Main] 收到信号 %s，正在关闭服务...", sig)
	case err := <-serveErr:
		runErr = fmt.Errorf("服务启动失败: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接收推送，再停定时任务，最后处理完队列积压
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warnf(ctx, "[Main] HTTP 服务强制关闭: %v", err)
	}
	a.tasks.Stop()
	stopDispatch()

	drained := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		a.log.Warnf(ctx, "[Main] 事件队列未在超时前处理完，剩余 %d 个", a.dispatcher.Depth())
	}

	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Infof(ctx, "[Main] 服务已退出")
	return runErr
}

// ==================== 工具函数 ====================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
