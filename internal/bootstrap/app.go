// Package bootstrap 负责进程装配：配置、日志、依赖注入与 HTTP 路由。
package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httphandler "github.com/ricky-ultimate/convo-backend/internal/handler/http"
	wshandler "github.com/ricky-ultimate/convo-backend/internal/handler/websocket"
	"github.com/ricky-ultimate/convo-backend/internal/hub"
	"github.com/ricky-ultimate/convo-backend/internal/infra/setup"
	redisstate "github.com/ricky-ultimate/convo-backend/internal/infra/state/redis"
	"github.com/ricky-ultimate/convo-backend/internal/middleware"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
	"github.com/ricky-ultimate/convo-backend/internal/service"
	"github.com/ricky-ultimate/convo-backend/internal/tasks"
	"github.com/ricky-ultimate/convo-backend/internal/worker"

	gormrepo "github.com/ricky-ultimate/convo-backend/internal/infra/persistence/gorm"
)

// App 持有进程的全部长生命周期组件。
type App struct {
	cfg         *Config
	db          *gorm.DB
	redisClient *redis.Client
	asynqClient *asynq.Client

	hub    *hub.Hub
	worker *worker.Server
	server *http.Server
}

// NewApp 装配全部依赖。任何一步失败都直接返回错误，进程不应带着
// 半初始化的状态运行。
func NewApp(cfg *Config) (*App, error) {
	setupLogger(cfg)

	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, err
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, err
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Repository 层
	userRepo := gormrepo.NewGormUserRepository(db)
	roomRepo := gormrepo.NewGormRoomRepository(db)
	membershipRepo := gormrepo.NewGormMembershipRepository(db)
	messageRepo := gormrepo.NewGormMessageRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)

	// Service 层
	refresher := tasks.NewEnqueuer(asynqClient)
	authService := service.NewAuthService(userRepo, stateRepo, cfg.JWTSecret, cfg.JWTExpiry, cfg.SessionTTL)
	roomService := service.NewRoomService(roomRepo, userRepo, membershipRepo, refresher)
	chatService := service.NewChatService(messageRepo, stateRepo, roomService, refresher, service.RateLimitPolicy{
		Points:   cfg.RateLimitPoints,
		Window:   cfg.RateLimitWindow,
		FailOpen: cfg.RateLimitFailOpen,
	})

	h := hub.NewHub(roomService, chatService, stateRepo)
	taskWorker := worker.NewServer(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, stateRepo, cfg.SessionTTL)

	router := buildRouter(cfg, redisClient, authService, roomService, chatService, h, stateRepo)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		asynqClient: asynqClient,
		hub:         h,
		worker:      taskWorker,
		server:      server,
	}, nil
}

func setupLogger(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.AppEnv == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	}
}

func buildRouter(
	cfg *Config,
	redisClient *redis.Client,
	authService *service.AuthService,
	roomService *service.RoomService,
	chatService *service.ChatService,
	h *hub.Hub,
	stateRepo repository.StateRepository,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigin))

	authHandler := httphandler.NewAuthHandler(authService)
	roomHandler := httphandler.NewRoomHandler(roomService)
	chatHandler := httphandler.NewChatHandler(chatService)
	wsHandler := wshandler.NewHandler(h, cfg.JWTSecret)

	router.GET("/ping", func(c *gin.Context) {
		if err := stateRepo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	auth := api.Group("/auth")
	auth.Use(middleware.IPRateLimit(redisClient, cfg.KeyPrefix, cfg.HTTPRateLimit, cfg.HTTPRateLimitWindow))
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", middleware.JWTAuth(cfg.JWTSecret), authHandler.Logout)
	}

	rooms := api.Group("/rooms")
	rooms.Use(middleware.JWTAuth(cfg.JWTSecret))
	{
		rooms.POST("", roomHandler.Create)
		rooms.GET("", roomHandler.List)
		rooms.GET("/lookup", roomHandler.Lookup)
		rooms.GET("/:id", roomHandler.Get)
		rooms.DELETE("/:id", roomHandler.Delete)
		rooms.POST("/:id/join", roomHandler.Join)
		rooms.POST("/:id/leave", roomHandler.Leave)
		rooms.GET("/:id/members", roomHandler.Members)
		rooms.GET("/:id/messages", chatHandler.Messages)
	}

	router.GET("/ws", wsHandler.Serve)
	return router
}

// requestLogger 按请求输出结构化访问日志。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Info("Request handled")
	}
}

// Start 启动 hub、任务消费端与 HTTP 服务。阻塞直到服务退出。
func (a *App) Start() error {
	go a.hub.Run()
	a.worker.Start()

	logrus.WithField("port", a.cfg.ServerPort).Info("Server starting")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 按依赖逆序优雅退出。
func (a *App) Shutdown(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown failed")
	}
	a.hub.Stop()
	a.worker.Shutdown()

	if err := a.asynqClient.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close asynq client")
	}
	if err := a.redisClient.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close redis client")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	logrus.Info("Server stopped")
}
