package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/copper/internal/api/http"
	"github.com/GriffinCanCode/copper/internal/api/middleware"
	"github.com/GriffinCanCode/copper/internal/api/ws"
	"github.com/GriffinCanCode/copper/internal/domain/assets"
	"github.com/GriffinCanCode/copper/internal/domain/node"
	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/config"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/copper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/copper/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/copper/internal/providers/chrome"
)

// Sessions is the registry the server exposes and tears down.
type Sessions interface {
	apihttp.Sessions
	ws.Sessions
	RemoveAll(ctx context.Context)
}

// Registrar joins and leaves the hub.
type Registrar interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
}

// Deps are the collaborators a Server is assembled from.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer
	Sessions Sessions
	// Registrar is nil in standalone mode
	Registrar Registrar
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg       *config.Config
	router    *gin.Engine
	http      *http.Server
	sessions  Sessions
	registrar Registrar
	tracer    *tracing.Tracer
	logger    *logging.Logger

	// leaveTimeout bounds Leave independently of the shutdown deadline
	leaveTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener // Protected by mu
	serveErr chan error
}

// NewServer wires the production collaborators from cfg: the asset cache,
// the chrome launcher, the session registry and, in node mode, the hub
// registrar.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing Copper",
		zap.String("port", cfg.Server.Port),
		zap.Bool("w3c", cfg.Session.EnableW3CProtocol),
		zap.Bool("node", cfg.Node.Enabled),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("copper", logger.Named("tracing"))

	cache := assets.NewCache(cfg.Session.ExtensionsDir, logger.Named("assets"), assets.WithMetrics(metrics))

	sessions := session.NewManager(
		chrome.NewLauncher(logger.Named("chrome")),
		chrome.NewFetcher(logger.Named("devtools")),
		cache,
		logger.Named("session"),
		session.Options{
			EnableW3C: cfg.Session.EnableW3CProtocol,
			Defaults:  launchDefaults(cfg.Session.Defaults),
		},
	).WithMetrics(metrics)
	if cfg.Session.EnableW3CProtocol {
		sessions.WithAttacher(chrome.NewAutomation(logger.Named("automation")))
	}

	var registrar Registrar
	if cfg.Node.Enabled {
		nodeCfg, err := nodeConfig(cfg)
		if err != nil {
			return nil, err
		}
		registrar = node.NewRegistrar(nodeCfg, logger.Named("node")).
			WithMetrics(metrics).
			WithTracer(tracer)
	}

	return New(Deps{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
		Sessions:  sessions,
		Registrar: registrar,
	}), nil
}

// New assembles a server from already constructed collaborators.
func New(deps Deps) *Server {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	if deps.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(deps.Tracer))
	}
	router.Use(monitoring.Middleware(deps.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		perIP, global := rateLimits(cfg.RateLimit)
		logger.Info("Rate limiting enabled",
			zap.Int("rps", perIP.RequestsPerSecond),
			zap.Int("burst", perIP.Burst),
			zap.Int("global_rps", global.RequestsPerSecond),
		)
		if global.RequestsPerSecond > 0 {
			router.Use(middleware.GlobalRateLimit(global))
		}
		router.Use(middleware.RateLimit(perIP))
	}
	router.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	prefix := normalizePrefix(cfg.Server.RoutesPrefix)
	handlers := apihttp.NewHandlers(deps.Sessions, prefix, logger.Named("http"))
	proxy := ws.NewProxy(deps.Sessions, logger.Named("ws")).WithMetrics(deps.Metrics)

	apihttp.RegisterRoutes(router.Group(prefix), handlers, proxy)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return &Server{
		cfg:    cfg,
		router: router,
		http: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions:  deps.Sessions,
		registrar: deps.Registrar,
		tracer:    deps.Tracer,
		logger:    logger,
		serveErr:  make(chan error, 1),

		leaveTimeout: leaveTimeout(cfg.Node),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener, serves in the background and joins the hub. A
// failed join shuts the server down again.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	s.logger.Info("Copper listening", zap.String("addr", ln.Addr().String()))

	if s.registrar == nil {
		return nil
	}
	if err := s.registrar.Join(ctx); err != nil {
		s.logger.Error("failed to join hub", zap.Error(err))
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := s.http.Shutdown(shutdownCtx); serr != nil {
			s.logger.Warn("shutdown after failed join", zap.Error(serr))
		}
		return err
	}
	return nil
}

// Errors reports a fatal serve failure. The channel closes when serving
// stops.
func (s *Server) Errors() <-chan error {
	return s.serveErr
}

// Stop drains requests, removes every session and leaves the hub. A leave
// failure is returned after local teardown completes. Leave gets its own
// deadline, sized for every deregistration attempt, so a drain that used up
// ctx does not cut it short.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Copper")

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}

	s.sessions.RemoveAll(ctx)

	var leaveErr error
	if s.registrar != nil {
		leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.leaveTimeout)
		leaveErr = s.registrar.Leave(leaveCtx)
		cancel()
		if leaveErr != nil {
			s.logger.Error("failed to leave hub", zap.Error(leaveErr))
		}
	}

	if s.tracer != nil {
		s.tracer.Close()
	}
	s.logger.Info("Copper stopped")
	return leaveErr
}

func launchDefaults(d config.LaunchDefault) session.LaunchOptions {
	headless := d.Headless
	return session.LaunchOptions{
		ChromePath:         d.ChromePath,
		ChromeFlags:        d.ChromeFlags,
		Headless:           &headless,
		IgnoreDefaultFlags: d.IgnoreDefaultFlags,
		UserDataDir:        d.UserDataDir,
		Port:               d.Port,
	}
}

func leaveTimeout(n config.NodeConfig) time.Duration {
	return node.Config{
		DeregisterRetries:  n.DeregisterRetries,
		DeregisterInterval: n.DeregisterInterval.Duration,
	}.LeaveBudget()
}

func nodeConfig(cfg *config.Config) (node.Config, error) {
	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		return node.Config{}, fmt.Errorf("node mode needs a numeric port, got %q: %w", cfg.Server.Port, err)
	}
	return node.Config{
		Host:               cfg.Node.Host,
		Port:               port,
		HubHost:            cfg.Node.HubHost,
		HubPort:            cfg.Node.HubPort,
		RegisterRetries:    cfg.Node.RegisterRetries,
		RegisterInterval:   cfg.Node.RegisterInterval.Duration,
		DeregisterRetries:  cfg.Node.DeregisterRetries,
		DeregisterInterval: cfg.Node.DeregisterInterval.Duration,
	}, nil
}

// rateLimits overlays the configured limits on the middleware defaults. The
// global limit stays zero unless configured.
func rateLimits(cfg config.RateLimitConfig) (perIP, global middleware.RateLimitConfig) {
	perIP = middleware.DefaultRateLimitConfig()
	if cfg.RequestsPerSecond > 0 {
		perIP.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		perIP.Burst = cfg.Burst
	}
	if cfg.GlobalRequestsPerSecond > 0 {
		global.RequestsPerSecond = cfg.GlobalRequestsPerSecond
		global.Burst = cfg.GlobalBurst
		if global.Burst < 1 {
			global.Burst = cfg.GlobalRequestsPerSecond
		}
	}
	return perIP, global
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
