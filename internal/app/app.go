package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"divrec/internal/config"
	apierrors "divrec/internal/errors"
	"divrec/internal/infrastructure"
	"divrec/internal/middleware"
	"divrec/internal/services"
	handlers "divrec/internal/transport/http"
	ws "divrec/internal/websocket"
	"divrec/pkg/contracts"
)

const (
	// Version is the release version reported by the health endpoints.
	Version = contracts.Version
	AppName = "divrec"
)

var (
	// BuildTime is set at compile time via -ldflags.
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID identifies this build in health output.
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(Version))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application is the server container: configuration, observability,
// services, transport and the websocket hub, wired in dependency order.
type Application struct {
	Config    *config.Config
	Paths     *config.Paths
	Router    *chi.Mux
	Server    *http.Server
	Hub       *ws.Hub
	Analytics *services.AnalyticsService
	Health    *services.HealthService
	Logger    *slog.Logger
	OTel      *infrastructure.OTelProviders
	Metrics   *infrastructure.BusinessMetrics
}

// NewApplication loads configuration and builds the full server.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.String("build_id", BuildID))

	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
		OTel:   otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the hub and the services in dependency order.
func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.Hub = hub

	metrics, err := infrastructure.CreateBusinessMetrics(a.OTel.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	analytics, err := services.NewAnalyticsService(a.Config.Analytics, a.Paths, hub, metrics, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize analytics service: %w", err)
	}
	a.Analytics = analytics

	a.Health = services.NewHealthServiceWithBuildInfo(
		Version, BuildTime, BuildID,
		a.Paths, analytics, hub, a.Logger,
	)

	return nil
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware first. Nothing here wraps the ResponseWriter, so
	// the websocket upgrade below still gets a plain http.Hijacker.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.With(middleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	r.Group(func(r chi.Router) {
		otelMW, err := middleware.NewOTelMiddleware(a.OTel)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware",
				slog.String("error", err.Error()))
		} else {
			r.Use(otelMW.Handler)
		}
		r.Use(middleware.BusinessMetricsMiddleware(a.Metrics))
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.Recoverer(a.Logger))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.CORS(a.corsConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus scrape endpoint stays outside the middleware group.
	r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(a.OTel.PrometheusHTTP, a.Logger))

	a.Router = r
}

// setupAPIRoutes mounts the versioned API.
func (a *Application) setupAPIRoutes(r chi.Router) {
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)
			r.Mount("/health", healthHandler.Routes())
			r.Get("/version", healthHandler.Version)
			r.Get("/stats", healthHandler.SystemStats)
		})

		// Loading the universe and running analyses touch every price
		// series, so these endpoints get the job timeout instead of the
		// request default.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.Config.Server.JobTimeout, a.Logger))

			analyticsHandler := handlers.NewAnalyticsHandler(a.Analytics, a.Logger, errorHandler)
			r.Mount("/analytics", analyticsHandler.Routes())

			jobsHandler := handlers.NewJobsHandler(a.Analytics, a.Logger, errorHandler)
			r.Mount("/jobs", jobsHandler.Routes())
		})
	})
}

// corsConfig derives the CORS policy from configuration. The server's own
// origin is always allowed.
func (a *Application) corsConfig() middleware.CORSConfig {
	port := a.Config.Server.Port
	cfg := middleware.CORSConfig{
		AllowedOrigins: []string{
			fmt.Sprintf("http://localhost:%d", port),
			fmt.Sprintf("http://127.0.0.1:%d", port),
		},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}

	if a.Config.Security.EnableCORS && len(a.Config.Security.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, a.Config.Security.AllowedOrigins...)
	}
	return cfg
}

// createServer creates the HTTP server.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start launches the HTTP server. A server error cancels the supplied
// context so Run can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("log_level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.startupCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "startup check warnings",
			slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "server started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application: drain HTTP, cancel running jobs,
// stop the hub, flush telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Analytics.CancelAllJobs(shutdownCtx)
	a.Hub.Stop()

	if a.OTel != nil {
		if err := a.OTel.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry",
				slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}

// handleWebSocket upgrades the connection and hands it to the hub.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a.Logger.InfoContext(ctx, "websocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin:     a.checkWebSocketOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.ErrorContext(r.Context(), "websocket upgrade rejected",
				slog.Int("status", status),
				slog.String("reason", reason.Error()))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		a.Logger.ErrorContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	ws.ServeWS(a.Hub, conn, ws.Options{
		PingPeriod: a.Config.WebSocket.PingPeriod,
		PongWait:   a.Config.WebSocket.PongWait,
	}, a.Logger)
}

// checkWebSocketOrigin mirrors the CORS policy for the upgrade request.
// Requests without an Origin header (CLI clients, same-origin) are allowed.
func (a *Application) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if a.Config.Logging.Development {
		return true
	}
	for _, allowed := range a.corsConfig().AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	a.Logger.Warn("websocket origin not allowed", slog.String("origin", origin))
	return false
}

// startupCheck verifies the working directories are writable and reports
// whether the input data is present yet. Failures are warnings, not fatal:
// the universe can be loaded later once data arrives.
func (a *Application) startupCheck(ctx context.Context) error {
	var warnings []string

	directories := map[string]string{
		"data":    a.Paths.DataDir,
		"prices":  a.Paths.PricesDir,
		"reports": a.Paths.ReportsDir,
		"logs":    a.Paths.LogsDir,
	}
	for name, dir := range directories {
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
		} else {
			os.Remove(testFile)
		}
	}

	if !config.FileExists(a.Paths.EventsFile) {
		a.Logger.InfoContext(ctx, "distribution events file not found; universe load will fail until data is present",
			slog.String("path", a.Paths.EventsFile))
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "startup check passed")
	return nil
}
