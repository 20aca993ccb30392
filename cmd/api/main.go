package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stashd/stashd-backend/internal/config"
	"github.com/stashd/stashd-backend/internal/handler"
	"github.com/stashd/stashd-backend/internal/jobs"
	"github.com/stashd/stashd-backend/internal/middleware"
	"github.com/stashd/stashd-backend/internal/migration"
	"github.com/stashd/stashd-backend/internal/repository"
	"github.com/stashd/stashd-backend/internal/routes"
	"github.com/stashd/stashd-backend/internal/service"
	"github.com/stashd/stashd-backend/pkg/diffpatch"
	pkgjwt "github.com/stashd/stashd-backend/pkg/jwt"
	pkglogger "github.com/stashd/stashd-backend/pkg/logger"
	pkgredis "github.com/stashd/stashd-backend/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	pkglogger.InitStructured(cfg.Env)
	log := pkglogger.GetLogger()

	db, err := initDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Msg("connected to MySQL")

	if cfg.AutoMigrate {
		if err := migration.Run(db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	}

	policies, err := config.LoadTierPolicies(cfg.TierPolicyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tier policies")
	}

	// Repositories
	historyRepo := repository.NewHistoryRepository(db)
	entityStores := repository.NewEntityStores(db)
	tierRepo, err := repository.NewTierRepository(db, policies, cfg.DefaultTier)
	if err != nil {
		log.Fatal().Err(err).Msg("tier policy misconfigured")
	}

	// Services
	codec := diffpatch.New()
	historyService := service.NewHistoryService(historyRepo, entityStores, codec, nil)
	contentService := service.NewContentService(entityStores, historyService, tierRepo)
	cleanupService := service.NewCleanupService(historyRepo, entityStores, tierRepo)

	// Redis is optional; without it the cleanup lock is process-local.
	var cleanupLock jobs.JobLock = jobs.NewNoopLock()
	if cfg.Redis.Host != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, cleanup lock is process-local")
		} else {
			log.Info().Msg("connected to Redis")
			cleanupLock = jobs.NewRedisLock(redisClient, "cleanup", cfg.CleanupLockTTL)
		}
	}

	scheduler := jobs.NewScheduler(pkglogger.WithComponent("scheduler"))
	scheduler.Register("cleanup", cfg.CleanupInterval,
		jobs.CleanupTask(cleanupService, cleanupLock, pkglogger.WithComponent("cleanup")))
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP
	if cfg.Env != "development" && cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(cors.Default())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	jwtManager := pkgjwt.NewManager(cfg.JWTSecret, cfg.JWTExpiry)
	routes.Setup(router,
		handler.NewContentHandler(contentService),
		handler.NewHistoryHandler(historyService),
		handler.NewCleanupHandler(cleanupService),
		jwtManager,
	)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Str("addr", addr).Msg("server listening")
		if err := router.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
}

// initDB opens the MySQL connection pool.
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	logMode := gormlogger.Warn
	if cfg.Env == "development" || cfg.Env == "dev" {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
		// Normalize driver duplicate-key errors to gorm.ErrDuplicatedKey
		// for the optimistic version retry.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}
