package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/middleware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
	ws "github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/websocket"
)

// Router API路由器
type Router struct {
	engine          *gin.Engine
	db              *gorm.DB
	services        *service.Services
	controller      *hardware.Controller
	authHandler     *AuthHandler
	userHandler     *UserHandler
	hardwareHandler *HardwareHandler
	paymentHandler  *PaymentHandler
	deviceLogAPI    *DeviceLogAPI
	wsHandler       *WebSocketHandler
	authMiddleware  *middleware.AuthMiddleware
	log             *zap.Logger
}

// NewRouter 创建路由器
// 服务与硬件控制器由组装层注入，路由器只负责HTTP编排
func NewRouter(db *gorm.DB, cfg *config.Config, services *service.Services, controller *hardware.Controller, hub *ws.Hub, log *zap.Logger) *Router {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	case "debug":
		gin.SetMode(gin.DebugMode)
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	if cfg.Security.RateLimit.Enabled {
		engine.Use(middleware.NewRateLimiter(cfg.Security.RateLimit).Middleware())
	}

	// 创建处理器
	authHandler := NewAuthHandler(services.Auth, services.User)
	userHandler := NewUserHandler(services.User, services.Auth)
	hardwareHandler := NewHardwareHandler(controller, log)
	paymentHandler := NewPaymentHandler(services.Payment, log)
	deviceLogAPI := NewDeviceLogAPI(services.DeviceLog)
	wsHandler := NewWebSocketHandler(hub, cfg.WebSocket, log)

	// 创建中间件
	authMiddleware := middleware.NewAuthMiddleware(services.Auth)

	router := &Router{
		engine:          engine,
		db:              db,
		services:        services,
		controller:      controller,
		authHandler:     authHandler,
		userHandler:     userHandler,
		hardwareHandler: hardwareHandler,
		paymentHandler:  paymentHandler,
		deviceLogAPI:    deviceLogAPI,
		wsHandler:       wsHandler,
		authMiddleware:  authMiddleware,
		log:             log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// OpenAPI文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)

			// 需要认证的路由
			authRequired := auth.Group("")
			authRequired.Use(r.authMiddleware.RequireAuth())
			{
				authRequired.POST("/logout", r.authHandler.Logout)
				authRequired.GET("/profile", r.authHandler.GetProfile)
				authRequired.PUT("/profile", r.authHandler.UpdateNickname)
				authRequired.PUT("/password", r.authHandler.UpdatePassword)
			}
		}

		// 出货控制板路由（需要认证）
		hw := v1.Group("/hardware")
		hw.Use(r.authMiddleware.RequireAuth())
		{
			hw.GET("/status", r.hardwareHandler.GetStatus)
			hw.GET("/distance", r.hardwareHandler.GetDistance)
			hw.POST("/initialize", r.hardwareHandler.Initialize)
			hw.POST("/disconnect", r.hardwareHandler.Disconnect)
			hw.POST("/buttons/:button", r.hardwareHandler.PressButton)
			hw.POST("/outputs", r.hardwareHandler.SetOutput)
			hw.POST("/probe", r.hardwareHandler.Probe)
			hw.POST("/command", r.hardwareHandler.SendCommand)
		}

		// 支付路由（需要认证）
		payments := v1.Group("/payments")
		payments.Use(r.authMiddleware.RequireAuth())
		{
			payments.POST("", r.paymentHandler.ProcessPayment)
			payments.POST("/cancel", r.paymentHandler.CancelPayment)
			payments.GET("/terminals", r.paymentHandler.GetAllTerminalStatus)
			payments.GET("/terminals/:method", r.paymentHandler.GetTerminalStatus)
			payments.POST("/terminals/connect", r.paymentHandler.ConnectTerminals)
			payments.POST("/terminals/disconnect", r.paymentHandler.DisconnectTerminals)

			// 交易流水
			payments.GET("/transactions", r.paymentHandler.QueryTransactions)
			payments.GET("/transactions/latest", r.paymentHandler.GetLatestTransactions)
			payments.GET("/transactions/stats", r.paymentHandler.GetTransactionStats)
			payments.GET("/transactions/:order_no", r.paymentHandler.GetTransaction)
		}

		// 设备通信日志路由（需要认证）
		deviceLogs := v1.Group("")
		deviceLogs.Use(r.authMiddleware.RequireAuth())
		r.deviceLogAPI.RegisterRoutes(deviceLogs)

		// 管理员路由（需要管理员权限）
		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware.RequireRole("admin"))
		{
			admin.GET("/users", r.userHandler.ListUsers)
			admin.POST("/users", r.userHandler.CreateUser)
			admin.PUT("/users/:id/status", r.userHandler.UpdateUserStatus)
			admin.GET("/users/:id/sessions", r.userHandler.GetUserSessions)
			admin.DELETE("/users/:id/sessions", r.userHandler.RevokeUserSessions)
			admin.POST("/sessions/cleanup", r.userHandler.CleanupSessions)
		}
	}

	// WebSocket路由
	// 机台前端本机直连事件流，不强制令牌；带令牌时正常解析
	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.OptionalAuth())
	{
		wsGroup.GET("/events", r.wsHandler.EventsWebSocket)
		wsGroup.GET("/online", r.wsHandler.GetOnlineCount)
	}

	// 静态文件服务
	r.engine.Static("/static", "./static")

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":   "healthy",
		"message":  "服务运行正常",
		"hardware": r.controller.State().String(),
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
