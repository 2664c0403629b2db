package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/audit"
	"github.com/dukerupert/handover/internal/catalog"
	"github.com/dukerupert/handover/internal/middleware"
	"github.com/dukerupert/handover/internal/validation"
	"github.com/labstack/echo/v4"
)

// Completer signs phases and completes inspections.
type Completer interface {
	CompletePhase(ctx context.Context, id int64, phase handover.Phase, signature string) (*handover.PhaseCompletion, error)
	Complete(ctx context.Context, id int64) (*handover.CompletionResult, error)
}

// AuditLog keeps the per-inspection history.
type AuditLog interface {
	Record(ctx context.Context, entry audit.Entry)
	History(ctx context.Context, inspectionID int64, limit, offset int) ([]audit.Entry, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server with all its dependencies.
type Server struct {
	echo   *echo.Echo
	ln     net.Listener
	logger *slog.Logger

	// Configuration
	Addr string

	// Domain services
	inspectionService handover.InspectionService
	mediaService      handover.MediaService
	reportService     handover.ReportService
	uploader          handover.MediaUploader
	completer         Completer
	orders            handover.OrderLookup
	catalog           *catalog.Catalog
	auditLog          AuditLog
	db                Pinger
	uploadsDir        string

	rateLimiter   *middleware.RateLimiter
	uploadLimiter *middleware.RateLimiter
}

// Config holds the configuration for creating a new Server.
type Config struct {
	Addr   string
	Logger *slog.Logger

	// Domain services
	InspectionService handover.InspectionService
	MediaService      handover.MediaService
	ReportService     handover.ReportService
	Uploader          handover.MediaUploader
	Completer         Completer

	// Orders is used to fill order details when an inspection is created
	// without them. It should not fail; see orders.WithFallback.
	Orders  handover.OrderLookup
	Catalog *catalog.Catalog

	// AuditLog records inspection history. Nil disables it.
	AuditLog AuditLog

	// DB is checked by the readiness probe. Nil reports ready.
	DB Pinger

	// UploadsDir is served under /uploads when local file storage is used.
	UploadsDir string

	RateLimit middleware.RateLimitConfig
}

// NewServer creates a new HTTP server with the given configuration.
func NewServer(cfg Config) *Server {
	s := &Server{
		Addr:              cfg.Addr,
		logger:            cfg.Logger,
		inspectionService: cfg.InspectionService,
		mediaService:      cfg.MediaService,
		reportService:     cfg.ReportService,
		uploader:          cfg.Uploader,
		completer:         cfg.Completer,
		orders:            cfg.Orders,
		catalog:           cfg.Catalog,
		auditLog:          cfg.AuditLog,
		db:                cfg.DB,
		uploadsDir:        cfg.UploadsDir,
	}

	if cfg.RateLimit == (middleware.RateLimitConfig{}) {
		cfg.RateLimit = middleware.DefaultRateLimitConfig()
	}
	s.rateLimiter = middleware.NewRateLimiter(s.logger, cfg.RateLimit)
	s.uploadLimiter = middleware.NewUploadRateLimiter(s.logger, cfg.RateLimit)

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Validator = validation.NewValidator()

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// Echo returns the underlying Echo instance.
// Use sparingly - prefer registering routes through Server methods.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Open starts the HTTP server.
func (s *Server) Open() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	s.echo.Server.ReadHeaderTimeout = 10 * time.Second

	go func() {
		if err := s.echo.Server.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("server started", slog.String("addr", s.ln.Addr().String()))
	return nil
}

// Close gracefully shuts down the HTTP server.
func (s *Server) Close(ctx context.Context) error {
	s.rateLimiter.Shutdown()
	s.uploadLimiter.Shutdown()

	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// URL returns the URL of the server.
func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}
