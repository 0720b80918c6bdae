package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/IrishJohn1973/tenderned-scraper/config"
	"github.com/IrishJohn1973/tenderned-scraper/internal/handlers"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/award"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/master"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/organization"
	"github.com/IrishJohn1973/tenderned-scraper/internal/repositories/tender"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/database"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/events"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/extractor"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/feeder"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/kafka"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/logging"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/middleware"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/redis"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/scheduler"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, flushLogs := logging.New(cfg.AppName, cfg.LogLevel, cfg.PrettyLogs)
	defer flushLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := tracing.Init(ctx, cfg.TracingServiceName, cfg.TracingEndpoint)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Failed to shut down tracer provider")
			}
		}()
	}

	db, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	locker := redis.NewLocker(redisClient, cfg.AppName+":")

	emitter := events.NewNoopEmitter()
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewKafkaEmitter(producer, logger)
	}

	tenderRepo := tender.NewRepository(db, logger)
	awardRepo := award.NewRepository(db, logger)
	orgRepo := organization.NewRepository(db, logger)
	masterRepo := master.NewRepository(db, logger)

	extractorSvc := extractor.NewService(db, awardRepo, orgRepo, logger, cfg.FeedBatchSize)
	feederSvc := feeder.NewService(db, tenderRepo, awardRepo, orgRepo, masterRepo, emitter, logger, cfg.FeedBatchSize)
	runner := scheduler.NewRunner(extractorSvc, feederSvc, locker, logger, cfg.FeedInterval, cfg.FeedLockTTL)

	if cfg.FeedSchedulerEnabled {
		go runner.Start(ctx)
	}

	e := buildServer(cfg, logger, db, redisClient, tenderRepo, awardRepo, orgRepo, masterRepo, runner)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Infof("Starting HTTP server on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to shut down HTTP server cleanly")
	}
}

func connectDatabase(cfg config.Config, logger ectologger.Logger) (database.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return nil, err
	}
	migrationService := database.NewMigrationService(logger, cfg.DatabaseMigrationFolderPath)
	if err := migrationService.Migrate(cfg.DatabaseName, driver); err != nil {
		return nil, err
	}

	return database.NewDatabaseInstance(sqlxDB, logger), nil
}

func buildServer(
	cfg config.Config,
	logger ectologger.Logger,
	db database.DB,
	redisClient *redis.Client,
	tenderRepo *tender.Repository,
	awardRepo *award.Repository,
	orgRepo *organization.Repository,
	masterRepo *master.Repository,
	runner *scheduler.Runner,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	healthHandler := handlers.NewHealthHandler(db, redisClient, tenderRepo, awardRepo)
	ingestHandler := handlers.NewIngestHandler(tenderRepo, awardRepo, logger)
	feedHandler := handlers.NewFeedHandler(runner, logger)
	orgHandler := handlers.NewOrganizationHandler(orgRepo, masterRepo, logger)

	e.GET("/health/live", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	api.POST("/ingest/tenders", ingestHandler.IngestTenders)
	api.POST("/ingest/awards", ingestHandler.IngestAwards)
	api.POST("/organizations/extract", feedHandler.ExtractOrganizations)
	api.POST("/feed/run", feedHandler.FeedAll)
	api.POST("/feed/tenders", feedHandler.MergeTenders)
	api.POST("/feed/awards", feedHandler.MergeAwards)
	api.POST("/feed/organizations", feedHandler.MergeOrganizations)
	api.GET("/organizations", orgHandler.List)
	api.GET("/organizations/:identity_key", orgHandler.Get)
	api.GET("/organizations/:identity_key/master", orgHandler.GetMaster)

	return e
}
