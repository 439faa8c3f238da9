// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/catalog"
	catalogmemory "github.com/bissquit/statusboard/internal/catalog/memory"
	catalogpostgres "github.com/bissquit/statusboard/internal/catalog/postgres"
	"github.com/bissquit/statusboard/internal/config"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/identity"
	"github.com/bissquit/statusboard/internal/incidents"
	incidentsmemory "github.com/bissquit/statusboard/internal/incidents/memory"
	incidentspostgres "github.com/bissquit/statusboard/internal/incidents/postgres"
	"github.com/bissquit/statusboard/internal/organizations"
	orgmemory "github.com/bissquit/statusboard/internal/organizations/memory"
	orgpostgres "github.com/bissquit/statusboard/internal/organizations/postgres"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/bissquit/statusboard/internal/pkg/httputil"
	"github.com/bissquit/statusboard/internal/pkg/metrics"
	"github.com/bissquit/statusboard/internal/pkg/postgres"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/bissquit/statusboard/internal/snapshot"
	"github.com/bissquit/statusboard/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const bridgeRestartDelay = 2 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redis         *redis.Client
	router        *realtime.Router
	slugs         *organizations.SlugCache
	server        *http.Server
	metricsServer *http.Server
	bgCancel      context.CancelFunc
	bgDone        sync.WaitGroup

	organizations *organizations.Service
	catalog       *catalog.Service
	incidents     *incidents.Service
}

type repositories struct {
	organizations organizations.Repository
	catalog       catalog.Repository
	incidents     incidents.Repository
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())

	app := &App{
		config:   cfg,
		logger:   logger,
		bgCancel: bgCancel,
		router:   realtime.NewRouter(cfg.Realtime.SubscriberBuffer),
		slugs:    organizations.NewSlugCache(cfg.Snapshot.SlugCacheTTL),
	}

	repos, err := app.openStorage()
	if err != nil {
		bgCancel()
		return nil, err
	}

	if cfg.Redis.Enabled {
		app.startBridge(bgCtx)
	}

	app.slugs.Start()

	if app.db != nil {
		app.runCollector(bgCtx, func() { metrics.RecordDBPoolMetrics(app.db) })
	}
	if app.redis != nil {
		app.runCollector(bgCtx, func() { metrics.RecordRedisPoolMetrics(app.redis) })
	}

	app.organizations = organizations.NewService(repos.organizations, app.slugs)
	app.catalog = catalog.NewService(repos.catalog, app.router, repos.incidents)
	app.incidents = incidents.NewService(repos.incidents, app.catalog, app.router)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) openStorage() (*repositories, error) {
	if a.config.Storage.Driver == config.StorageDriverMemory {
		a.logger.Warn("using in-memory storage: data is lost on restart and not shared between instances")
		return &repositories{
			organizations: orgmemory.NewRepository(),
			catalog:       catalogmemory.NewRepository(),
			incidents:     incidentsmemory.NewRepository(),
		}, nil
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), a.config.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             a.config.Database.URL,
		MaxOpenConns:    a.config.Database.MaxOpenConns,
		MaxIdleConns:    a.config.Database.MaxIdleConns,
		ConnMaxLifetime: a.config.Database.ConnMaxLifetime,
		ConnectAttempts: a.config.Database.ConnectAttempts,
		ApplicationName: "statusboard",
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db

	return &repositories{
		organizations: orgpostgres.NewRepository(db),
		catalog:       catalogpostgres.NewRepository(db),
		incidents:     incidentspostgres.NewRepository(db),
	}, nil
}

// startBridge connects the router to Redis. Local delivery keeps working
// while Redis is unreachable; the subscriber side is restarted until ctx ends.
func (a *App) startBridge(ctx context.Context) {
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})

	bridge := realtime.NewRedisBridge(a.redis, a.router, realtime.BridgeConfig{
		ChannelPrefix:        a.config.Redis.ChannelPrefix,
		PublishAttempts:      a.config.Redis.PublishAttempts,
		PublishRetryInterval: a.config.Redis.PublishRetryInterval,
	})

	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		for {
			if err := bridge.Run(ctx); err != nil {
				a.logger.Error("realtime bridge stopped", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(bridgeRestartDelay):
			}
		}
	}()
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"storage", a.config.Storage.Driver,
		"redis_bridge", a.config.Redis.Enabled,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	// Hijacked websocket connections are not tracked by Shutdown; closing
	// the router ends their write loops.
	a.router.Close()

	wg.Wait()

	a.bgCancel()
	a.bgDone.Wait()
	a.slugs.Stop()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

func (a *App) runCollector(ctx context.Context, collect func()) {
	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()

		// Collect immediately on start
		collect()

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				collect()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Organizations returns the organization service. Used by tests and the
// CLI to seed tenants.
func (a *App) Organizations() *organizations.Service {
	return a.organizations
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	tokens := identity.NewAuthenticator(identity.Config{
		SecretKey:           a.config.JWT.SecretKey,
		Issuer:              a.config.JWT.Issuer,
		AccessTokenDuration: a.config.JWT.AccessTokenDuration,
	})

	identityHandler := identity.NewHandler()
	orgHandler := organizations.NewHandler(a.organizations)
	catalogHandler := catalog.NewHandler(a.catalog)
	incidentsHandler := incidents.NewHandler(a.incidents)

	view := snapshot.NewView(a.organizations, a.catalog, a.incidents, a.config.Snapshot.RecentWindow)
	snapshotHandler := snapshot.NewHandler(view)

	wsHandler := realtime.NewHandler(a.router, a.organizations, tokens, realtime.HandlerConfig{
		PingInterval:       a.config.Realtime.PingInterval,
		WriteTimeout:       a.config.Realtime.WriteTimeout,
		PublicConnectRate:  a.config.Realtime.PublicConnectRate,
		PublicConnectBurst: a.config.Realtime.PublicConnectBurst,
		AllowedOrigins:     a.config.CORS.AllowedOrigins,
	})

	// Websocket connections outlive any request timeout.
	wsHandler.RegisterRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		snapshotHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(tokens))

			identityHandler.RegisterProtectedRoutes(r)

			r.Route("/orgs/{orgID}", func(r chi.Router) {
				r.Use(httputil.RequireTenant("orgID"))
				r.Use(orgHandler.RequireOrganization("orgID"))

				orgHandler.RegisterRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(httputil.RequireRole(domain.RoleMember))
					catalogHandler.RegisterRoutes(r)
					incidentsHandler.RegisterRoutes(r)
				})
			})
		})
	})

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	if err := postgres.Ping(r.Context(), a.db, 0); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
