package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/linklit/LinkLit/config"
	appmodel "github.com/linklit/LinkLit/internal/app/model"
	apprepository "github.com/linklit/LinkLit/internal/app/repository"
	appserver "github.com/linklit/LinkLit/internal/app/server"
	appservice "github.com/linklit/LinkLit/internal/app/service"
	"github.com/linklit/LinkLit/internal/infra/logger"
	infraNATS "github.com/linklit/LinkLit/internal/infra/nats"
	infraPostgres "github.com/linklit/LinkLit/internal/infra/postgres"
	infraPrometheus "github.com/linklit/LinkLit/internal/infra/prometheus"
	infraRedis "github.com/linklit/LinkLit/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.FromEnv())
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("base_url", cfg.App.BaseURL),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Bool("safe_browsing", cfg.SafeBrowsing.Enabled),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Link{},
		&appmodel.UserLink{},
		&appmodel.User{},
		&appmodel.PaymentRecord{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	eventArchive := apprepository.NewEventArchive(pool)
	if err := eventArchive.Init(ctx); err != nil {
		log.Fatal("Failed to prepare event archive", zap.Error(err))
	}

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully")

	archiver := appservice.NewEventArchiver(js, log, eventArchive)
	if err := archiver.Start(); err != nil {
		log.Fatal("Failed to start event archiver", zap.Error(err))
	}
	defer archiver.Stop()

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	userRepo := apprepository.NewUserRepository(gormDB)

	events := appservice.NewEventPublisher(js)

	links := appservice.NewLinkService(appservice.LinkServiceDeps{
		Logger:       log,
		Links:        linkRepo,
		Users:        userRepo,
		Generator:    appservice.NewSlugGenerator(),
		Codec:        appservice.NewCodec(cfg.App.Secret),
		Safety:       appservice.NewSafeBrowsingChecker(cfg.SafeBrowsing, redisClient, log),
		Entitlements: appservice.NewEntitlementEvaluator(cfg.App.CustomLinkQuota, cfg.App.AnonExpiryMonths),
		Events:       events,
		BaseURL:      cfg.App.BaseURL,
	})
	if err := links.WarmFilter(ctx); err != nil {
		log.Warn("Failed to warm slug filter, resolution falls back to the database", zap.Error(err))
	}

	server := appserver.New(appserver.Dependencies{
		Logger:       log,
		Postgres:     pool,
		Redis:        redisClient,
		Links:        links,
		Users:        appservice.NewUserService(userRepo, log),
		Billing:      appservice.NewBillingService(cfg.Billing, userRepo, events, log),
		QuotaCeiling: cfg.App.CustomLinkQuota,
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
