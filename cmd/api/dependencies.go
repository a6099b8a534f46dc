package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/analytics"
	analyticshandler "github.com/FACorreiaa/smart-finance-ingest/internal/domain/analytics/handler"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extract"
	ingesthandler "github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/handler"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/scheduler"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/cache"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/config"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/cron"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/db"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/interceptors"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Repositories
	RecordRepo      repository.RecordRepository
	ImportRepo      repository.ImportRepository
	TransactionRepo repository.TransactionRepository
	AnalyticsRepo   analytics.Repository

	// Services
	FileStorage      storage.Storage
	Cache            *cache.ResultCache
	Extractor        *extract.Extractor
	Scheduler        *scheduler.Scheduler
	Pipeline         *service.Pipeline
	AnalyticsService *analytics.Service
	Cron             *cron.Scheduler
	TokenValidator   *interceptors.TokenValidator
	RateLimiter      *interceptors.RateLimiter

	// Handlers
	IngestHandler    *ingesthandler.IngestHandler
	AnalyticsHandler *analyticshandler.AnalyticsHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.New(deps.Registry)

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.RecordRepo = repository.NewPostgresRecordRepository(d.DB.Pool)
	d.ImportRepo = repository.NewPostgresImportRepository(d.DB.Pool)
	d.TransactionRepo = repository.NewPostgresTransactionRepository(d.DB.Pool)
	d.AnalyticsRepo = analytics.NewRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	jwtSecret := []byte(d.Config.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		return fmt.Errorf("jwt secret is required")
	}
	d.TokenValidator = interceptors.NewTokenValidator(jwtSecret)

	fileStorage, err := storage.New(storage.Config{LocalPath: d.Config.Storage.LocalPath})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.Cache = cache.New(cache.WithRecorder(d.Metrics))

	ocr := extract.NewTesseract(extract.TesseractConfig{
		Binary:   d.Config.OCR.TesseractPath,
		Language: d.Config.OCR.Language,
		PSM:      d.Config.OCR.PSM,
	}, extract.ExecRunner{Logger: d.Logger})
	d.Extractor = extract.NewExtractor(ocr, extract.TextLayerReader{}, d.Logger).WithRecorder(d.Metrics)

	ing := d.Config.Ingestion
	d.Scheduler = scheduler.New(d.Logger,
		scheduler.WithWorkers(ing.Workers),
		scheduler.WithQueueSize(ing.QueueSize),
		scheduler.WithPollInterval(ing.PollInterval),
		scheduler.WithHandlerTimeout(ing.HandlerTimeout),
		scheduler.WithDefaults(ing.MaxAttempts, ing.BackoffBase),
		scheduler.WithObserver(d.Metrics),
	)

	d.Pipeline = service.NewPipeline(d.Scheduler, service.Deps{
		Records:      d.RecordRepo,
		Imports:      d.ImportRepo,
		Transactions: d.TransactionRepo,
		Files:        d.FileStorage,
		Extractor:    d.Extractor,
		Cache:        d.Cache,
		Recorder:     d.Metrics,
		Currency:     ing.DefaultCurrency,
		Logger:       d.Logger,
	})

	d.AnalyticsService = analytics.NewService(d.AnalyticsRepo, d.Cache, d.Logger)

	d.RateLimiter = interceptors.NewRateLimiter(float64(d.Config.Server.RateLimitPerSecond), d.Config.Server.RateLimitBurst)

	d.Cron = cron.NewScheduler(cron.Config{
		SweepSchedule: d.Config.Cache.SweepSchedule,
		StaleAfter:    ing.StaleAfter,
	}, d.Cache, d.RecordRepo, d.Metrics, d.Logger)
	d.Cron.SetLimiter(d.RateLimiter)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.IngestHandler = ingesthandler.NewIngestHandler(d.Pipeline, d.Logger)
	d.AnalyticsHandler = analyticshandler.NewAnalyticsHandler(d.AnalyticsService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
