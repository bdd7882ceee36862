package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"retailsales/internal/census"
	"retailsales/internal/config"
	apierrors "retailsales/internal/errors"
	"retailsales/internal/infrastructure"
	"retailsales/internal/lookup"
	customMiddleware "retailsales/internal/middleware"
	"retailsales/internal/services"
	handlers "retailsales/internal/transport/http"
	ws "retailsales/internal/websocket"
	"retailsales/pkg/contracts"
)

const (
	AppName = "Retail Sales (MARTS)"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	WebSocketHub  *ws.Hub
	Fetcher       *census.CachedFetcher
	RetailService *services.RetailService
	HealthService *services.HealthService
	Palette       *lookup.Palette
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	ErrorHandler  *apierrors.ErrorHandler

	businessMetrics *infrastructure.BusinessMetrics
}

// NewApplication creates a new application instance from the environment
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
		slog.String("version", contracts.Version),
		slog.String("census_base_url", cfg.Census.BaseURL),
		slog.Bool("api_key_configured", cfg.Census.APIKey != ""))

	providers, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Telemetry, contracts.Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	return New(cfg, logger, providers)
}

// New wires an application from an explicit configuration. Tests use it
// to point the census client at a stub server.
func New(cfg *config.Config, logger *slog.Logger, providers *infrastructure.OTelProviders) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if providers == nil {
		providers = &infrastructure.OTelProviders{Logger: logger}
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the pipeline from lookup assets to services
func (a *Application) initializeServices() error {
	businessMetrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.businessMetrics = businessMetrics

	categories, err := lookup.LoadCategories(a.Config.Assets.CategoriesFile)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	palette, err := lookup.LoadPalette(a.Config.Assets.ColorsFile)
	if err != nil {
		return fmt.Errorf("failed to load palette: %w", err)
	}
	a.Palette = palette

	a.Logger.Info("Lookup assets loaded",
		slog.Int("categories", categories.Len()),
		slog.Int("colors", len(palette.Colors())))

	a.WebSocketHub = ws.NewHub(a.Logger, a.OTelProviders.Meter)

	client := census.NewClient(a.Config.Census,
		census.WithNotifier(a.WebSocketHub),
		census.WithLogger(a.Logger),
		census.WithMeter(a.OTelProviders.Meter))
	a.Fetcher = census.NewCachedFetcher(client, a.Config.Census.CacheTTL, a.Logger)

	a.RetailService = services.NewRetailService(a.Fetcher, categories, a.Config, a.Logger,
		services.WithStatusNotifier(a.WebSocketHub),
		services.WithBusinessMetrics(businessMetrics))

	a.HealthService = services.NewHealthService(contracts.Version, contracts.BuildTime,
		categories, a.Fetcher, a.WebSocketHub, a.Logger)

	return nil
}

// setupRouter configures the HTTP router
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// The websocket upgrade must not pass through the timeout or logging
	// wrappers, they hide the http.Hijacker.
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).
		Get("/ws", ws.Handler(a.WebSocketHub, a.Config.Security.AllowedOrigins, a.Logger))

	r.Group(func(r chi.Router) {
		if a.OTelProviders.Tracer != nil {
			otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders, a.businessMetrics)
			if err != nil {
				a.Logger.Warn("HTTP tracing disabled", slog.String("error", err.Error()))
			} else {
				r.Use(otelMiddleware.Handler)
			}
		}
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.getCORSConfig()))
		r.Use(customMiddleware.NotificationTarget)
		if rl := a.Config.Security.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}

		r.Route("/api", a.setupAPIRoutes)

		page := handlers.NewPageHandler(a.RetailService, a.Palette, a.Config.Census, a.Logger, a.ErrorHandler)
		r.With(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger)).
			Get("/", page.ServeIndex)

		if a.OTelProviders.PrometheusHTTP != nil {
			r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
		}
	})

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes mounts the JSON and download endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))

	health := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get("/health", health.HealthCheck)
	r.Get("/health/ready", health.ReadinessCheck)
	r.Get("/health/live", health.LivenessCheck)
	r.Get("/version", health.Version)

	r.Mount("/retail", handlers.NewRetailHandler(a.RetailService, a.Config.Census, a.Logger, a.ErrorHandler).Routes())
	r.Post("/logs", handlers.NewClientLogHandler(a.Logger, a.ErrorHandler).Handle)
}

func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start starts the hub and begins serving. It returns once the listener
// goroutine is running; listener errors are reported through errc.
func (a *Application) Start(ctx context.Context, errc chan<- error) {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.WebSocketHub.Start()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			errc <- err
			return
		}
		errc <- nil
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}

	return errors.Join(errs...)
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	a.Start(ctx, errc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-errc:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.InfoContext(context.Background(), "Received shutdown signal")
		return nil
	})

	// errgroup cancels gctx when the listener fails, so both paths end here.
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}
