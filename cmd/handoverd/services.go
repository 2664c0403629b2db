package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/handover"
	handoverhttp "github.com/dukerupert/handover/http"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/catalog"
	"github.com/dukerupert/handover/internal/email"
	"github.com/dukerupert/handover/internal/media"
	"github.com/dukerupert/handover/internal/orders"
	"github.com/dukerupert/handover/internal/pdf"
	"github.com/dukerupert/handover/internal/queue"
	"github.com/dukerupert/handover/internal/report"
	"github.com/dukerupert/handover/internal/storage"
	"github.com/dukerupert/handover/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Services holds all application services.
type Services struct {
	DB          *postgres.DB
	FileStorage handover.FileStorage
	Mailer      handover.Mailer
	Orders      handover.OrderLookup
	Catalog     *catalog.Catalog
	Uploader    *media.Uploader
	Completer   *report.Completer
	Queue       handover.Queue
	Workers     *queue.WorkerPool
	Audit       *audit.Logger
}

// initServices initializes all application services.
func initServices(ctx context.Context, pool *pgxpool.Pool, cfg *Config, logger *slog.Logger) (*Services, error) {
	// Initialize database wrapper with all domain services
	db := postgres.NewDB(pool)
	logger.Info("database services initialized")

	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("loading checklist: %w", err)
	}

	// Initialize file storage
	fileStorage, err := storage.NewFileStorage(ctx, logger, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	logger.Info("file storage initialized", slog.String("provider", cfg.StorageProvider))

	// Initialize mailer
	mailer := email.NewMailer(logger, cfg.EmailConfig())
	logger.Info("mailer initialized", slog.String("provider", cfg.EmailProvider))

	// Initialize order lookup
	lookup := orders.New(cfg.OrderConfig(), logger)

	// Initialize queue and workers
	q := postgres.NewQueue(pool, logger, cfg.QueueConfig())
	workers := queue.NewWorkerPool(q, logger, cfg.QueueConfig())
	workers.RegisterHandler(handover.JobTypePhaseNotification,
		report.NewPhaseNotifier(db.InspectionService, mailer, cfg.EmailSupportAddress, logger))
	logger.Info("queue service initialized", slog.Int("workers", cfg.QueueWorkerCount))

	completer := report.NewCompleter(report.Config{
		Inspections:    db.InspectionService,
		Media:          db.MediaService,
		Reports:        db.ReportService,
		Renderer:       pdf.NewRenderer(),
		Storage:        fileStorage,
		Mailer:         mailer,
		Queue:          q,
		SupportAddress: cfg.EmailSupportAddress,
		Logger:         logger,
	})

	return &Services{
		DB:          db,
		FileStorage: fileStorage,
		Mailer:      mailer,
		Orders:      lookup,
		Catalog:     cat,
		Uploader:    media.NewUploader(db.InspectionService, db.MediaService, fileStorage, logger),
		Completer:   completer,
		Queue:       q,
		Workers:     workers,
		Audit:       audit.NewLogger(pool, logger),
	}, nil
}

// serverConfig builds the HTTP server configuration from the services.
func serverConfig(addr string, cfg *Config, services *Services, logger *slog.Logger) handoverhttp.Config {
	serverCfg := handoverhttp.Config{
		Addr:              addr,
		Logger:            logger,
		InspectionService: services.DB.InspectionService,
		MediaService:      services.DB.MediaService,
		ReportService:     services.DB.ReportService,
		Uploader:          services.Uploader,
		Completer:         services.Completer,
		Orders:            services.Orders,
		Catalog:           services.Catalog,
		AuditLog:          services.Audit,
		DB:                services.DB,
		RateLimit:         cfg.RateLimitConfig(),
	}
	if cfg.StorageProvider == "local" {
		serverCfg.UploadsDir = cfg.StorageLocalPath
	}
	return serverCfg
}
