package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adminkit/apiserver/config"
	"github.com/adminkit/apiserver/internal/handlers"
	"github.com/adminkit/apiserver/internal/metrics"
	"github.com/adminkit/apiserver/internal/mq"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       *Deps
	logger     *slog.Logger
	stop       context.CancelFunc
}

// handlerTimeout bounds a request inside the router. It stays below
// the server's WriteTimeout so the 503 can still be written.
const handlerTimeout = 10 * time.Second

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: handlerTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// New connects every backend and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	deps, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	router := NewRouter(deps, metrics.New())

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	return &Server{
		httpServer: newHTTPServer(port, router),
		router:     router,
		deps:       deps,
		logger:     logger,
	}, nil
}

// NewRouter mounts every route on a fresh chi router.
func NewRouter(d *Deps, m *metrics.Metrics) *chi.Mux {
	cfg := d.Config
	logger := d.Logger
	requireAuth := handlers.RequireAuth(d.Sessions, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		clientAddress(cfg.TrustProxy),
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(handlerTimeout),
		handlers.RequestLog(d.Requests, m, logger, "/healthz", "/metrics"),
		handlers.CSRFGuard(d.Csrf, handlers.CSRFOptions{
			HeaderName:  cfg.CSRF.HeaderName,
			ExemptPaths: cfg.CSRF.ExemptPaths,
			OnReject:    func(r *http.Request) { m.CSRFRejected(r.Method) },
		}, logger),
	)

	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", m.Handler())

	handlers.AuthRouter(router, handlers.NewAuthHandler(d.Auth, d.Verification, d.Csrf, logger), requireAuth)

	router.Route("/translation", func(r chi.Router) {
		handlers.TranslationRouter(r, handlers.NewTranslationHandler(d.Translations, logger), requireAuth)
	})

	router.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Route("/superuser", func(r chi.Router) {
			handlers.SuperuserRouter(r, handlers.NewSuperuserHandler(d.Permissions, d.Roles, d.Users, logger))
		})

		r.With(handlers.HasRole("superuser", "developer")).Route("/incoming-request", func(r chi.Router) {
			handlers.IncomingRequestRouter(r, handlers.NewIncomingRequestHandler(d.Requests, logger))
		})

		r.With(handlers.HasRole("superuser", "developer")).Get("/_config", handlers.ConfigHandler(cfg))
	})

	return router
}

// clientAddress rewrites RemoteAddr from forwarding headers only when the
// server sits behind a trusted proxy. CSRF tokens are bound to this address.
func clientAddress(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return middleware.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. With the in-process queue the mail worker
// runs alongside it.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	if _, ok := s.deps.Broker.(*mq.Memory); ok {
		worker := s.deps.MailWorker()
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("mail worker stopped", slog.Any("error", err))
			}
		}()
	}

	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.deps.Close())
}
