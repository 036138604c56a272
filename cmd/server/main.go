package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempmail/portal/internal/auth"
	jwtpkg "tempmail/portal/internal/auth/jwt"
	"tempmail/portal/internal/config"
	"tempmail/portal/internal/domain"
	"tempmail/portal/internal/health"
	"tempmail/portal/internal/logger"
	"tempmail/portal/internal/monitoring"
	"tempmail/portal/internal/provider"
	"tempmail/portal/internal/service"
	"tempmail/portal/internal/storage"
	"tempmail/portal/internal/storage/hybrid"
	"tempmail/portal/internal/storage/memory"
	redisstore "tempmail/portal/internal/storage/redis"
	sqlstore "tempmail/portal/internal/storage/sql"
	httptransport "tempmail/portal/internal/transport/http"
	"tempmail/portal/internal/websocket"
)

// main 启动临时邮箱门户服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting tempmail portal",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Duration("poll_interval", cfg.Poll.Interval),
	)

	// 初始化套餐存储
	planStore, err := initializePlanStore(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize plan store: %v", err))
	}
	defer planStore.Close()

	// 上游供应商客户端
	providerClient := provider.New(cfg.Provider, log)
	log.Info("provider client initialized",
		zap.String("base_url", cfg.Provider.BaseURL),
		zap.String("api_host", cfg.Provider.APIHost),
	)

	// 监控与健康检查
	metrics := monitoring.NewMetrics()
	providerClient.SetObserver(metrics)
	healthChecker := health.NewHealthChecker(planStore, providerClient, log)

	// JWT 校验器（令牌由外部认证服务签发）
	jwtManager := jwtpkg.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// WebSocket Hub：向前端推送收件箱变化
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	wsHub.SetClientCountFunc(metrics.UpdateWebsocketClients)

	// 会话编排器：轮询发现新邮件时通过 WebSocket 通知
	coordinator := service.NewCoordinator(
		providerClient,
		planStore,
		cfg.Poll.Interval,
		log,
		func(userID, address string, messages []domain.MessageSummary) {
			metrics.RecordInboxUpdate()
			wsHub.NotifyInbox(userID, address, messages)
		},
	)
	coordinator.SetMetrics(metrics)
	defer coordinator.Close()

	// 认证事件广播：登出时释放会话
	notifier := auth.NewNotifier()
	events, cancelEvents := notifier.Subscribe()
	defer cancelEvents()

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Coordinator:   coordinator,
		JWTManager:    jwtManager,
		Notifier:      notifier,
		WebSocketHub:  wsHub,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 认证事件消费 goroutine
	group.Go(func() error {
		coordinator.Watch(groupCtx, events)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		coordinator.Close()
		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializePlanStore 根据配置选择套餐存储实现。
//
// 数据库 + Redis 都可用时采用混合存储：SQL 持久化套餐信息，
// Redis 承担当日用量的原子计数。只配置数据库时直接使用 SQL
// 存储；什么都没配置时退化为内存存储（仅适合开发环境）。
func initializePlanStore(cfg *config.Config, log *zap.Logger) (storage.PlanStore, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory plan store (development mode)")
		return memory.NewStore(), nil
	}

	persistent, err := sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql store: %w", err)
	}
	log.Info("using sql plan store", zap.String("type", cfg.Database.Type))

	if !cfg.Redis.Enabled {
		return persistent, nil
	}

	counter, err := redisstore.NewStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store: %w", err)
	}
	log.Info("redis usage counter enabled", zap.String("address", cfg.Redis.Address))

	return hybrid.NewStore(persistent, counter, log), nil
}
