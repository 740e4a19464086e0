package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/jordanhubbard/chitti/internal/events"
	"github.com/jordanhubbard/chitti/internal/health"
	"github.com/jordanhubbard/chitti/internal/httpapi"
	"github.com/jordanhubbard/chitti/internal/loader"
	"github.com/jordanhubbard/chitti/internal/logging"
	"github.com/jordanhubbard/chitti/internal/metrics"
	"github.com/jordanhubbard/chitti/internal/plugin"
	"github.com/jordanhubbard/chitti/internal/ratelimit"
	"github.com/jordanhubbard/chitti/internal/registry"
	"github.com/jordanhubbard/chitti/internal/service"
	"github.com/jordanhubbard/chitti/internal/store"
	"github.com/jordanhubbard/chitti/internal/tracing"
)

// Options tunes NewServer beyond what Config carries.
type Options struct {
	Version string
	// Logger overrides the logger built from Config.LogLevel/LogFormat.
	Logger *slog.Logger
	// Sources replaces the env and manifest plugin sources.
	Sources []loader.Source
}

// Server owns the plugin registry and everything wired around it. The web
// API and the in-process shell share it.
type Server struct {
	cfg     Config
	version string

	r *chi.Mux

	reg      *registry.Registry
	svc      *service.Service
	store    store.Store
	bus      *events.Bus
	metrics  *metrics.Registry
	recorder *Recorder
	report   loader.Report
	health   *health.Tracker
	limiter  *ratelimit.Limiter
	logger   *slog.Logger

	shutdownTracing func(context.Context) error
}

func NewServer(ctx context.Context, cfg Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Version:     opts.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	s := &Server{
		cfg:             cfg,
		version:         opts.Version,
		reg:             registry.New(),
		bus:             events.NewBus(),
		metrics:         metrics.New(),
		logger:          logger,
		shutdownTracing: shutdownTracing,
	}

	if cfg.DBDSN != "" {
		db, err := store.NewSQLite(cfg.DBDSN)
		if err != nil {
			_ = shutdownTracing(ctx)
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			_ = shutdownTracing(ctx)
			return nil, err
		}
		s.store = db
		logger.Info("database initialized", slog.String("dsn", cfg.DBDSN))
	}

	s.health = health.NewTracker(health.DefaultConfig(),
		health.WithEventBus(s.bus),
		health.WithOnUpdate(func(provider string, state health.State) {
			s.metrics.ProviderHealth.WithLabelValues(provider).Set(state.Level())
		}),
	)
	if cfg.RateLimitRPS > 0 {
		s.limiter = ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst,
			ratelimit.WithCounter(s.metrics.RateLimited))
	}

	s.recorder = &Recorder{
		Registry: s.reg,
		Metrics:  s.metrics,
		Bus:      s.bus,
		Store:    s.store,
		Health:   s.health,
		Logger:   logger,
	}
	s.svc = service.New(s.reg, service.WithObserver(s.recorder))

	s.loadPlugins(ctx, opts.Sources)
	if err := s.applyDefaults(); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	s.r = s.newRouter()
	return s, nil
}

func (s *Server) loadPlugins(ctx context.Context, sources []loader.Source) {
	deps := PluginDeps{
		Config:     s.cfg,
		Dispatcher: s.svc,
		Recorder:   s.recorder,
		Logger:     s.logger,
	}
	if s.cfg.OTelEnabled {
		deps.Transport = tracing.HTTPTransport(nil)
	}
	if sources == nil {
		sources = Sources(s.cfg, NewCatalog(deps))
	}

	ld := loader.New(
		loader.WithLogger(s.logger),
		loader.WithMetrics(s.metrics),
		loader.WithEventBus(s.bus),
	)
	s.report = ld.Load(ctx, s.reg, sources...)
	for _, f := range s.report.Failures {
		s.recorder.Audit("plugin.failed", f.Name, f.Error())
	}
	s.logger.Info("plugins loaded",
		slog.Int("providers", len(s.reg.Providers())),
		slog.Int("agents", len(s.reg.Agents())),
		slog.Int("tools", len(s.reg.Tools())),
		slog.Int("failures", len(s.report.Failures)),
	)
}

// applyDefaults honours CHITTI_DEFAULT_PROVIDER and CHITTI_DEFAULT_MODEL.
func (s *Server) applyDefaults() error {
	if s.cfg.DefaultProvider == "" {
		if s.cfg.DefaultModel != "" {
			return errors.New("CHITTI_DEFAULT_MODEL requires CHITTI_DEFAULT_PROVIDER")
		}
		return nil
	}
	if err := s.reg.SetDefaultProvider(s.cfg.DefaultProvider); err != nil {
		return fmt.Errorf("CHITTI_DEFAULT_PROVIDER: %w", err)
	}
	if s.cfg.DefaultModel != "" {
		if err := s.reg.SetDefaultModel(s.cfg.DefaultProvider, s.cfg.DefaultModel); err != nil {
			return fmt.Errorf("CHITTI_DEFAULT_MODEL: %w", err)
		}
	}
	return nil
}

func (s *Server) newRouter() *chi.Mux {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing.Middleware())
	r.Use(logging.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Chitti-Provider", "X-Chitti-Model"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	deps := httpapi.Dependencies{
		Service:  s.svc,
		Metrics:  s.metrics,
		Store:    s.store,
		EventBus: s.bus,
		Health:   s.health,
		Version:  s.version,
		Logger:   s.logger,
	}
	if s.limiter != nil {
		deps.Limit = s.limiter.Middleware
	}
	httpapi.MountRoutes(r, deps)
	return r
}

func (s *Server) Router() http.Handler         { return s.r }
func (s *Server) Service() *service.Service    { return s.svc }
func (s *Server) Registry() *registry.Registry { return s.reg }
func (s *Server) Report() loader.Report        { return s.report }
func (s *Server) EventBus() *events.Bus        { return s.bus }
func (s *Server) Metrics() *metrics.Registry   { return s.metrics }
func (s *Server) Logger() *slog.Logger         { return s.logger }
func (s *Server) Store() store.Store           { return s.store }
func (s *Server) Health() *health.Tracker      { return s.health }

// AgentCommands returns the shell commands contributed by loaded agents.
func (s *Server) AgentCommands() []*cobra.Command {
	var out []*cobra.Command
	for _, a := range s.reg.AgentList() {
		if cp, ok := a.(plugin.CommandProvider); ok {
			if c := cp.Command(); c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Close flushes traces and closes the store.
func (s *Server) Close(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	var errs []error
	if s.shutdownTracing != nil {
		errs = append(errs, s.shutdownTracing(ctx))
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// EnvFile is the .env path loaded by the binaries: CHITTI_ENV_FILE or ".env".
func EnvFile() string {
	if p := os.Getenv("CHITTI_ENV_FILE"); p != "" {
		return p
	}
	return ".env"
}
