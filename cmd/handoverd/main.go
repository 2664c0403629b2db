package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/handover"
	handoverhttp "github.com/dukerupert/handover/http"
	"github.com/dukerupert/handover/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags. Everything else comes from the
// environment.
type options struct {
	envFile     string
	migrateOnly bool
	checkConfig bool
}

func parseFlags(args []string, stderr io.Writer, getenv func(string) string) (options, error) {
	var opts options
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.envFile, "env-file", envString(getenv, "HANDOVER_ENV_FILE", ".env"), "dotenv file read before the environment")
	fs.BoolVar(&opts.migrateOnly, "migrate", false, "apply database migrations and exit")
	fs.BoolVar(&opts.checkConfig, "check-config", false, "validate configuration and exit")
	if err := fs.Parse(args[1:]); err != nil {
		return opts, err
	}
	return opts, nil
}

// run starts the inspection server and blocks until ctx is cancelled or a
// termination signal arrives.
func run(ctx context.Context, stdout, stderr io.Writer, args []string, getenv func(string) string) error {
	opts, err := parseFlags(args, stderr, getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	getenv, err = withDotEnv(getenv, opts.envFile)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.checkConfig {
		fmt.Fprintf(stdout, "configuration ok: env=%s storage=%s email=%s orders=%t\n",
			cfg.Environment, cfg.StorageProvider, cfg.EmailProvider, cfg.OrdersBaseURL != "")
		return nil
	}

	logger := newLogger(stderr, cfg)
	slog.SetDefault(logger)

	pool, err := newDatabasePool(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := runMigrations(pool, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	if opts.migrateOnly {
		return nil
	}

	services, err := initServices(ctx, pool, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := services.Workers.Start(ctx, []string{handover.QueueNotifications}); err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := handoverhttp.NewServer(serverConfig(addr, cfg, services, logger))
	if err := server.Open(); err != nil {
		_ = services.Workers.Stop()
		return fmt.Errorf("starting server: %w", err)
	}
	logger.Info("handover server started",
		slog.String("url", server.URL()),
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageProvider),
		slog.String("email", cfg.EmailProvider))
	fmt.Fprintf(stdout, "listening on %s\n", server.URL())

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return shutdown(server, services, logger)
}

// shutdown stops accepting requests, then drains the workers and pending
// audit writes.
func shutdown(server *handoverhttp.Server, services *Services, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if closeErr := server.Close(ctx); closeErr != nil {
		logger.Error("server forced to shutdown", slog.String("error", closeErr.Error()))
		err = fmt.Errorf("server shutdown: %w", closeErr)
	}
	if stopErr := services.Workers.Stop(); stopErr != nil {
		logger.Error("workers did not stop cleanly", slog.String("error", stopErr.Error()))
	}
	services.Audit.Wait()

	logger.Info("server exited gracefully")
	return err
}

// newLogger returns a JSON logger in production and a text logger
// elsewhere.
func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	if !cfg.IsProduction() {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339Nano))
		}
		return a
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With(slog.String("service", "handoverd"))
}

// newDatabasePool connects to Postgres and verifies the connection.
func newDatabasePool(ctx context.Context, cfg *Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	// Inspections are low-frequency writes; a small pool is enough.
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s: %w", cfg.DBName, err)
	}

	logger.Info("database connected", slog.String("database", cfg.DBName))
	return pool, nil
}

// runMigrations applies the embedded goose migrations.
func runMigrations(pool *pgxpool.Pool, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	before, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return err
	}
	after, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	logger.Info("database schema ready",
		slog.Int64("from_version", before),
		slog.Int64("version", after))
	return nil
}
