package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempmail/portal/internal/auth"
	jwtpkg "tempmail/portal/internal/auth/jwt"
	"tempmail/portal/internal/config"
	"tempmail/portal/internal/health"
	"tempmail/portal/internal/middleware"
	"tempmail/portal/internal/monitoring"
	"tempmail/portal/internal/service"
	"tempmail/portal/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Coordinator   *service.Coordinator
	JWTManager    *jwtpkg.Manager
	Notifier      *auth.Notifier
	WebSocketHub  *websocket.Hub
	Metrics       *monitoring.Metrics
	HealthChecker *health.HealthChecker
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
		router.Use(mm.PanicRecovery())
		router.Use(mm.HTTPMetrics())
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.Coordinator, deps.Notifier, deps.Logger)
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	rateLimit := middleware.NewRateLimiter(
		deps.Config.RateLimit.RequestsPerSecond,
		deps.Config.RateLimit.Burst,
	)

	// 健康检查与指标
	if deps.HealthChecker != nil {
		router.GET("/health", gin.WrapH(deps.HealthChecker.Handler()))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Public Routes（无需认证的公开API，登录态仅用于日志归属） ==========
		publicRoutes := v1.Group("/public")
		publicRoutes.Use(jwtAuth.OptionalAuth(), rateLimit.Limit())
		{
			publicRoutes.GET("/domains", handler.listDomains) // 获取可用域名列表
		}

		// ========== Mailbox Routes ==========
		mailboxRoutes := v1.Group("/mailbox")
		mailboxRoutes.Use(jwtAuth.RequireAuth(), rateLimit.Limit())
		{
			mailboxRoutes.POST("", handler.createMailbox)           // 创建临时邮箱（替换当前会话）
			mailboxRoutes.GET("", handler.currentMailbox)           // 当前会话快照
			mailboxRoutes.POST("/refresh", handler.refreshInbox)    // 手动刷新收件箱
			mailboxRoutes.PUT("/polling", handler.setPolling)       // 开关自动刷新
			mailboxRoutes.GET("/messages/:id", handler.openMessage) // 邮件详情
		}

		// ========== Plan Routes ==========
		v1.GET("/plan", jwtAuth.RequireAuth(), handler.getPlan)

		// ========== Auth Routes ==========
		v1.POST("/auth/signout", jwtAuth.RequireAuth(), handler.signOut)

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", deps.WebSocketHub.HandleConnection)
		}
	}

	return router
}
