package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/menulive/internal/api"
	"github.com/onnwee/menulive/internal/api/handlers"
	"github.com/onnwee/menulive/internal/cache"
	"github.com/onnwee/menulive/internal/circuitbreaker"
	"github.com/onnwee/menulive/internal/config"
	"github.com/onnwee/menulive/internal/fetch"
	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/menu"
	"github.com/onnwee/menulive/internal/metrics"
	"github.com/onnwee/menulive/internal/middleware"
	"github.com/onnwee/menulive/internal/realtime"
	"github.com/onnwee/menulive/internal/view"
)

const (
	shutdownTimeout   = 10 * time.Second
	metricsInterval   = 15 * time.Second
	initialRenderWait = 15 * time.Second
)

// Server is the display service: the cached menu, the invalidation trigger and
// the HTTP surface displays connect to.
type Server struct {
	cfg     *config.Config
	client  *fetch.Client
	store   *menu.Store
	display *view.Controller
	hub     *handlers.Hub
	trigger *realtime.Trigger
	limiter *middleware.RateLimiter
	handler http.Handler

	ready chan struct{}
	mu    sync.Mutex
	addr  net.Addr
}

// New wires the service from cfg without starting anything.
func New(cfg *config.Config) (*Server, error) {
	client := fetch.New(fetch.Options{
		BaseURL:         cfg.APIBaseURL,
		Timeout:         cfg.HTTPTimeout,
		RPS:             cfg.FetchRPS,
		Burst:           cfg.FetchBurst,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})

	store, err := menu.NewStore(menu.APISource{Client: client}, menu.StoreConfig{
		TTL:        cfg.CacheTTL,
		Backend:    cfg.CacheBackend,
		MaxEntries: cfg.CacheMaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("menu store: %w", err)
	}

	renderer, err := view.NewRenderer()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("renderer: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		client:  client,
		store:   store,
		hub:     handlers.NewHub(),
		limiter: middleware.NewRateLimiter(0, 0, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst),
		ready:   make(chan struct{}),
	}
	s.display = view.NewController(store, renderer, s.hub, cfg.DefaultLang)
	s.trigger = realtime.New(realtime.Options{
		PushURL:       cfg.PushURL,
		PollInterval:  cfg.PollInterval,
		ReconnectBase: cfg.ReconnectBase,
		ReconnectMax:  cfg.ReconnectMax,
	}, store, client, s.display)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	s.handler = api.NewRouter(api.Deps{
		Display:     s.display,
		Hub:         s.hub,
		RateLimiter: s.limiter,
		CORS:        cors,
		Health: handlers.HealthSources{
			Breaker:    func() circuitbreaker.State { return client.BreakerState() },
			Mode:       func() string { return string(s.trigger.Mode()) },
			CacheStats: func() map[string]cache.Stats { return store.Stats() },
			Clients:    s.hub.Clients,
			ActiveView: func() string { return s.display.ActiveView().Key() },
		},
	})
	return s, nil
}

// Handler returns the HTTP handler of the display surface.
func (s *Server) Handler() http.Handler { return s.handler }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Close()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	bg, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.hub.Run(bg) }()
	go func() { defer wg.Done(); s.limiter.RunCleanup(bg) }()
	collector := metrics.NewCollector(s.store.Sizers(), metricsInterval)
	go func() { defer wg.Done(); collector.Start(bg) }()

	mode := s.trigger.Start(bg)

	renderCtx, cancel := context.WithTimeout(bg, initialRenderWait)
	if _, err := s.display.ShowCategories(renderCtx); err != nil {
		logger.Warn("Initial menu render failed, showing error state", "error", err)
	}
	cancel()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.Info("Menu display server listening", "addr", ln.Addr().String(), "mode", mode, "lang", s.display.Language())
	close(s.ready)

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("Shutting down display server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}
	stop()
	s.trigger.Wait()
	wg.Wait()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
