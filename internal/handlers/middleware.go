package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adminkit/apiserver/internal/services"
	"github.com/adminkit/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	contextUserKey   contextKey = "user"
	contextClaimsKey contextKey = "claims"
)

// Authenticator resolves a bearer token to its user and claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.User, services.Claims, error)
}

// CsrfValidator consumes CSRF tokens.
type CsrfValidator interface {
	Validate(ctx context.Context, token, ip string) (bool, error)
}

// RequestRecorder persists the request log.
type RequestRecorder interface {
	Record(ctx context.Context, req types.IncomingRequest) error
}

// RequestObserver receives latency samples, typically a Prometheus collector.
type RequestObserver interface {
	Observe(route, method string, status int, elapsed time.Duration)
}

// CurrentUser returns the user RequireAuth stored in ctx.
func CurrentUser(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func currentClaims(ctx context.Context) (services.Claims, bool) {
	claims, ok := ctx.Value(contextClaimsKey).(services.Claims)
	return claims, ok
}

// RequireAuth authenticates the bearer token and stores the user, with its
// roles and permissions, in the request context.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			user, claims, err := auth.Authenticate(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, services.ErrUnauthenticated) {
					writeError(w, http.StatusUnauthorized, "unauthenticated")
					return
				}
				writeServiceError(w, r, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			ctx = context.WithValue(ctx, contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HasPermission lets the request through when the user holds any of keys.
func HasPermission(keys ...string) func(http.Handler) http.Handler {
	return guard(func(u types.User) bool { return u.HasPermission(keys...) })
}

// HasRole lets the request through when the user holds any of the role keys.
func HasRole(keys ...string) func(http.Handler) http.Handler {
	return guard(func(u types.User) bool { return u.HasRole(keys...) })
}

// Can lets the request through when any key names a permission or role of the user.
func Can(keys ...string) func(http.Handler) http.Handler {
	return guard(func(u types.User) bool { return u.Can(keys...) })
}

// guard must run after RequireAuth. Without a user it answers 401.
func guard(allowed func(types.User) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !allowed(user) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFOptions configures CSRFGuard.
type CSRFOptions struct {
	HeaderName  string
	ExemptPaths []string
	// OnReject is called for every refused request.
	OnReject func(r *http.Request)
}

var csrfMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// CSRFGuard requires a live CSRF token for the caller's ip on every
// mutating request outside the exempt paths.
func CSRFGuard(validator CsrfValidator, opts CSRFOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	header := opts.HeaderName
	if header == "" {
		header = "X-CSRF-Token"
	}
	exempt := make(map[string]bool, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt[strings.TrimRight(p, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !csrfMethods[r.Method] || exempt[strings.TrimRight(r.URL.Path, "/")] {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := validator.Validate(r.Context(), r.Header.Get(header), clientIP(r))
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}
			if !ok {
				if opts.OnReject != nil {
					opts.OnReject(r)
				}
				writeError(w, StatusPageExpired, "page expired")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLog times every request, logs it and hands it to the recorder
// and observer. The route pattern names the request.
func RequestLog(recorder RequestRecorder, observer RequestObserver, logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			ip := clientIP(r)

			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", status),
				slog.String("client_ip", ip),
				slog.String("latency", elapsed.String()),
			)
			if observer != nil {
				observer.Observe(route, r.Method, status, elapsed)
			}
			if recorder != nil {
				err := recorder.Record(context.WithoutCancel(r.Context()), types.IncomingRequest{
					Name:   route,
					Method: r.Method,
					Path:   r.URL.RequestURI(),
					IP:     ip,
					TimeMS: float64(elapsed.Microseconds()) / 1000,
				})
				if err != nil {
					logger.Warn("record request", slog.Any("error", err))
				}
			}
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
