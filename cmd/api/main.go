package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "waterworks/api/swagger" // swagger docs
	"waterworks/internal/cache"
	"waterworks/internal/config"
	"waterworks/internal/database"
	"waterworks/internal/handler"
	"waterworks/internal/logger"
	"waterworks/internal/metrics"
	"waterworks/internal/middleware"
	"waterworks/internal/repository"
	"waterworks/internal/service"
	"waterworks/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Waterworks API
// @version         1.0
// @description     Role-based access control and audited valve records.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	db, err := database.NewConnection(cfg.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	log.Info("connected to PostgreSQL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	grants, err := newGrantCache(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("grant cache unavailable")
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log, cfg.CORSOrigins)
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	userRepo := repository.NewUserRepository(db)
	valveRepo := repository.NewValveRepository(db)
	logRepo := repository.NewValveLogRepository(db)

	permService := service.NewPermissionService(roleRepo, permRepo, txManager, grants, log)
	roleService := service.NewRoleService(roleRepo, permRepo, permService, txManager, grants, m, log, cfg.StrictSeeding)
	access := service.NewAccessEvaluator(permRepo, grants, m, log)
	auditor := service.NewChangeAuditor(valveRepo, logRepo, txManager, m)
	valveService := service.NewValveService(valveRepo, roleRepo, auditor, wsHub, log)
	auditService := service.NewAuditService(valveRepo, logRepo)
	userService := service.NewUserService(userRepo, roleRepo, logRepo, permService, txManager)

	if err := roleService.SeedSystemRoles(ctx); err != nil {
		log.WithError(err).Fatal("seeding system roles failed")
	}

	roleHandler := handler.NewRoleHandler(roleService, permService, log)
	valveHandler := handler.NewValveHandler(valveService, log)
	auditHandler := handler.NewAuditHandler(auditService, log)
	userHandler := handler.NewUserHandler(userService, log)

	router := gin.New()
	router.Use(gin.Recovery(), m.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", m.Handler())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	secret := []byte(cfg.JWTSecret)
	router.GET("/ws", middleware.TokenFromQuery(), middleware.Authenticate(secret, userService, log), func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	api := router.Group("", middleware.Authenticate(secret, userService, log))
	roleHandler.RegisterRoutes(api, access)
	valveHandler.RegisterRoutes(api, access)
	auditHandler.RegisterRoutes(api, access)
	userHandler.RegisterRoutes(api, access)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}

func newGrantCache(ctx context.Context, cfg *config.Config, log *logrus.Logger) (cache.GrantCache, error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("grant cache: redis")
		return cache.NewRedisCache(client, cfg.CacheTTL, log), nil
	case config.CacheMemory:
		log.WithField("size", cfg.CacheSize).Warn("grant cache: in-memory, revocations only reach this process")
		return cache.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL), nil
	default:
		log.Info("grant cache disabled")
		return cache.Noop{}, nil
	}
}
