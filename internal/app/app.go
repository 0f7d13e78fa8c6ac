// Package app wires configuration, services, transport and the websocket hub
// into a runnable HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"nebcli/internal/config"
	apierrors "nebcli/internal/errors"
	"nebcli/internal/exporter"
	"nebcli/internal/infrastructure"
	"nebcli/internal/ingest"
	customMiddleware "nebcli/internal/middleware"
	"nebcli/internal/services"
	"nebcli/internal/session"
	"nebcli/internal/source"
	transport "nebcli/internal/transport/http"
	ws "nebcli/internal/websocket"
	"nebcli/pkg/contracts/domain"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application holds all shared application state
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server

	metrics      *infrastructure.Metrics
	sessions     *session.Store
	hub          *ws.Hub
	errorHandler *apierrors.ErrorHandler

	datasetService   *services.DatasetService
	analyticsService *services.AnalyticsService
	healthService    *services.HealthService
}

// NewApplication creates the application with all services initialized
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	return app, nil
}

func (a *Application) initializeServices() error {
	a.metrics = infrastructure.NewMetrics()
	a.sessions = session.NewStore(a.Logger, a.Config.Session.TTL)
	a.errorHandler = apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	a.hub = ws.NewHub(a.Logger)
	a.hub.Start()

	aliases := ingest.DefaultAliases()
	if len(a.Config.Dataset.Aliases) > 0 {
		override := make(ingest.AliasSet, len(a.Config.Dataset.Aliases))
		for role, names := range a.Config.Dataset.Aliases {
			override[domain.Role(role)] = names
		}
		aliases = aliases.Merge(override)
	}

	pipeline := ingest.NewPipeline(a.Logger, ingest.Config{Aliases: aliases})
	fetcher := source.NewFetcher(a.Logger, a.Config.Source.CacheTTL)
	writer := exporter.NewCSVWriter(a.Logger, true)

	a.datasetService = services.NewDatasetService(services.DatasetServiceDeps{
		Logger:        a.Logger,
		Fetcher:       fetcher,
		Pipeline:      pipeline,
		Writer:        writer,
		Metrics:       a.metrics,
		Events:        a.hub,
		DefaultURL:    a.Config.Source.URL,
		DefaultRegion: a.Config.Dataset.DefaultRegion,
	})
	a.analyticsService = services.NewAnalyticsService(a.Logger)
	a.healthService = services.NewHealthService(Version, a.sessions, a.Logger)

	a.Logger.Info("services initialized",
		slog.String("source_url", a.Config.Source.URL),
		slog.Duration("cache_ttl", a.Config.Source.CacheTTL),
		slog.Duration("session_ttl", a.Config.Session.TTL),
	)
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			ExposedHeaders: []string{"X-Request-ID", transport.SessionHeader},
			Logger:         a.Logger,
		}))
	}

	if a.Config.Security.RateLimit.Enabled {
		limiter := customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		)
		r.Use(limiter.Handler)
	}

	a.setupAPIRoutes(r)

	// Prometheus scrape endpoint lives outside the API group so it skips
	// JSON content negotiation and session resolution.
	r.Get("/metrics", a.metrics.Handler().ServeHTTP)

	// WebSocket endpoint for dataset refresh notifications
	r.Get("/ws", ws.ServeWS(a.hub, a.Logger))

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        r,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

func (a *Application) setupAPIRoutes(r chi.Router) {
	datasetHandler := transport.NewDatasetHandler(a.datasetService, a.Logger, a.errorHandler, a.Config.Server.MaxUploadBytes)
	analyticsHandler := transport.NewAnalyticsHandler(a.analyticsService, a.Logger, a.errorHandler)
	healthHandler := transport.NewHealthHandler(a.healthService, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/version", healthHandler.Version)

		r.Group(func(r chi.Router) {
			r.Use(transport.SessionCtx(a.sessions))

			r.Mount("/dataset", datasetHandler.Routes())
			r.Mount("/analytics", analyticsHandler.Routes())
		})
	})
}

// Start runs the HTTP server until the context is cancelled or a shutdown
// signal arrives.
func (a *Application) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.Logger.Info("server starting",
			slog.String("addr", a.Server.Addr),
			slog.String("version", Version),
		)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		a.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.Info("context cancelled")
	}

	return a.Stop(context.Background())
}

// Stop gracefully shuts down the server and the websocket hub.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.hub.Stop()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		return err
	}

	infrastructure.CloseLogFile()
	a.Logger.Info("server stopped")
	return nil
}

// Run is the blocking entry point used by the web binary.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return a.Start(ctx)
}
