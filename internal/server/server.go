// Package server is the brokerage site's HTTP surface: page routes served
// from lazily loaded chunks, the lead form endpoints, the per-session draft
// API, hover prefetch and, in development, live reload.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/conneroisu/brokerage/internal/chunks"
	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/errors"
	"github.com/conneroisu/brokerage/internal/forms"
	"github.com/conneroisu/brokerage/internal/formstate"
	"github.com/conneroisu/brokerage/internal/leads"
	"github.com/conneroisu/brokerage/internal/logging"
	"github.com/conneroisu/brokerage/internal/pages"
	"github.com/conneroisu/brokerage/internal/prefetch"
	"github.com/conneroisu/brokerage/internal/watcher"
)

const healthPath = "/api/health"

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config  *config.Config
	Logger  logging.Logger
	Catalog *pages.Catalog
	Forms   *forms.Registry
	Leads   *leads.Service
	// Storage backs the per-session form-state stores. Nil keeps drafts in
	// memory only.
	Storage formstate.Storage
}

// Server serves the site.
type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	catalog  *pages.Catalog
	forms    *forms.Registry
	leads    *leads.Service
	sessions *formstate.Sessions

	chunks   *chunks.Cache
	index    *pages.Index
	site     atomic.Pointer[pages.Site]
	activity *prefetch.ActivityTracker
	batch    *prefetch.Batch
	hovers   *hoverTriggers

	limiter     *RateLimiter
	formLimiter *RateLimiter
	csrf        *CSRF
	hub         *ReloadHub

	handler   http.Handler
	startedAt time.Time

	// baseCtx outlives requests; deferred prefetches run under it.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	serverMutex sync.Mutex
	httpServer  *http.Server
	watcher     *watcher.ContentWatcher
}

// New builds a server and registers every catalogue page as a chunk.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if deps.Catalog == nil || deps.Forms == nil || deps.Leads == nil {
		return nil, fmt.Errorf("server: catalog, forms and leads are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("server")
	cfg := deps.Config

	site, err := deps.Catalog.Site()
	if err != nil {
		return nil, fmt.Errorf("loading site: %w", err)
	}

	cache := chunks.New(logger)
	index, err := pages.Register(cache, deps.Catalog, deps.Forms)
	if err != nil {
		return nil, fmt.Errorf("registering pages: %w", err)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	activity := prefetch.NewActivityTracker()

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		catalog:  deps.Catalog,
		forms:    deps.Forms,
		leads:    deps.Leads,
		sessions: formstate.NewSessions(deps.Storage, cfg.Storage.Namespace, cfg.Storage.SessionTTL, logger),
		chunks:   cache,
		index:    index,
		activity: activity,
		batch: prefetch.NewBatch(activity,
			prefetch.WithContext(baseCtx),
			prefetch.WithLogger(logger)),
		limiter:     NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		formLimiter: NewRateLimiter(cfg.RateLimit.FormRequests, cfg.RateLimit.FormWindow),
		csrf: NewCSRF(cfg.Security.CSRFCookie, cfg.Security.CSRFHeader,
			cfg.Security.SecureCookies, logger),
		hub:        NewReloadHub(logger, cfg.Server.AllowedOrigins),
		startedAt:  time.Now(),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	s.site.Store(site)
	s.hovers = newHoverTriggers(baseCtx, logger)
	s.handler = s.buildHandler()

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Chunks returns the page chunk cache.
func (s *Server) Chunks() *chunks.Cache {
	return s.chunks
}

// Sessions returns the per-session form-state stores.
func (s *Server) Sessions() *formstate.Sessions {
	return s.sessions
}

func (s *Server) buildHandler() http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	r.PathPrefix("/static/").Handler(staticHandler()).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/sitemap.xml", s.handleSitemap).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/robots.txt", s.handleRobots).Methods(http.MethodGet, http.MethodHead)

	// API routes sit on the root router so a wrong method reaches
	// MethodNotAllowedHandler instead of the not-found fallback.
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/csrf-token", s.handleCSRFToken).Methods(http.MethodGet)

	formLimit := RateLimitMiddleware(s.formLimiter, s.cfg.Security.TrustProxy, s.logger)
	if !s.cfg.RateLimit.Enabled {
		formLimit = func(next http.Handler) http.Handler { return next }
	}
	r.Handle("/api/contact", formLimit(http.HandlerFunc(s.handleContact))).Methods(http.MethodPost)
	r.Handle("/api/quote/{line}", formLimit(http.HandlerFunc(s.handleQuote))).Methods(http.MethodPost)

	r.HandleFunc("/api/forms/{formID}/draft", s.handleGetDraft).Methods(http.MethodGet)
	r.HandleFunc("/api/forms/{formID}/draft", s.handleSaveDraft).Methods(http.MethodPut)
	r.HandleFunc("/api/forms/{formID}/draft", s.handleClearDraft).Methods(http.MethodDelete)
	r.HandleFunc("/api/forms/{formID}/status", s.handleFormStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/prefetch/{chunk}", s.handleArmPrefetch).Methods(http.MethodPost)
	r.HandleFunc("/api/prefetch/{chunk}", s.handleCancelPrefetch).Methods(http.MethodDelete)

	if s.cfg.IsDevelopment() {
		r.Handle("/ws/reload", s.hub).Methods(http.MethodGet)
	}

	page := http.HandlerFunc(s.handlePage)
	r.Handle("/", page).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/insurance/{line}", page).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/quote/{line}", page).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/{page:[a-z0-9-]+}", page).Methods(http.MethodGet, http.MethodHead)

	chain := NewMiddlewareChain(
		LoggingMiddleware(s.logger),
		RecoveryMiddleware(s.logger),
		CORSMiddleware(s.cfg.Server.AllowedOrigins, s.cfg.IsDevelopment()),
		SecurityMiddleware(SecurityConfigFromAppConfig(s.cfg, s.logger)),
	)
	if s.cfg.RateLimit.Enabled {
		chain.AddMiddleware(RateLimitMiddleware(s.limiter, s.cfg.Security.TrustProxy, s.logger))
	}
	chain.AddMiddleware(s.csrf.Middleware)
	chain.AddMiddleware(BodyLimitMiddleware(s.cfg.Security.MaxBodyBytes))
	chain.AddMiddleware(s.trackActivity)

	return chain.Apply(r)
}

// Reload re-reads the catalogue, drops every cached chunk and tells live
// reload clients to refresh.
func (s *Server) Reload(ctx context.Context) error {
	site, err := s.catalog.Site()
	if err != nil {
		return err
	}

	index, err := pages.Register(s.chunks, s.catalog, s.forms)
	if err != nil {
		return err
	}

	s.site.Store(site)
	s.index.Replace(index.Pages())
	s.chunks.Invalidate()
	s.hub.Broadcast(reloadMessage)

	s.logger.Info(ctx, "content reloaded", "pages", len(index.Pages()))
	return nil
}

// Start serves on the configured address until ctx is done or Shutdown is
// called. It returns once the listener is closed.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.startWatcher(ctx); err != nil {
		s.logger.Warn(ctx, err, "content watcher disabled")
	}

	go s.sessions.Run(s.baseCtx, 0)
	if s.cfg.RateLimit.Enabled {
		go s.limiter.Run(s.baseCtx, time.Minute)
		go s.formLimiter.Run(s.baseCtx, time.Minute)
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
		case <-s.baseCtx.Done():
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "shutdown failed")
		}
	}()

	s.logger.Info(ctx, "serving", "addr", ln.Addr().String(), "environment", s.cfg.Server.Environment)

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown drains requests after Serve has returned.
	<-shutdownDone

	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and for
// queued lead notifications, then releases background work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.Lock()
	server := s.httpServer
	w := s.watcher
	s.watcher = nil
	s.serverMutex.Unlock()

	var watchErr, serveErr error
	if w != nil {
		watchErr = w.Stop()
	}
	s.hub.CloseAll()
	s.hovers.cancelAll()

	if server != nil {
		serveErr = server.Shutdown(ctx)
	}

	s.leads.Wait()
	s.baseCancel()

	return errors.CombineErrors(watchErr, serveErr)
}

func (s *Server) startWatcher(ctx context.Context) error {
	if !s.cfg.Content.Watch || s.cfg.Content.Dir == "" {
		return nil
	}

	w, err := watcher.New(300*time.Millisecond, s.logger)
	if err != nil {
		return err
	}
	w.AddFilter(watcher.NoHiddenFilter)
	w.AddFilter(watcher.YAMLFilter)
	w.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		return s.Reload(ctx)
	})

	if err := w.AddRecursive(s.cfg.Content.Dir); err != nil {
		_ = w.Stop()
		return err
	}

	w.Start(s.baseCtx)

	s.serverMutex.Lock()
	s.watcher = w
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "watching content", "dir", s.cfg.Content.Dir)
	return nil
}

// trackActivity counts requests towards idle detection. Live reload sockets
// stay open indefinitely and would keep the server busy forever.
func (s *Server) trackActivity(next http.Handler) http.Handler {
	tracked := s.activity.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}
		tracked.ServeHTTP(w, r)
	})
}
