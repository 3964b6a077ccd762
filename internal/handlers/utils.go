package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/adminkit/apiserver/internal/services"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// StatusPageExpired is answered for stale CSRF tokens and expired signed links.
const StatusPageExpired = 419

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

// MessageResponse is the body of most non-data responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// FieldError is one entry of a 422 response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResponse is the 422 payload.
type ValidationResponse struct {
	Errors []FieldError `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

func writeValidation(w http.ResponseWriter, errs validation.Errors) {
	fields := flattenErrors("", errs)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: fields})
}

func flattenErrors(prefix string, errs validation.Errors) []FieldError {
	var fields []FieldError
	for field, err := range errs {
		var nested validation.Errors
		if errors.As(err, &nested) {
			fields = append(fields, flattenErrors(prefix+field+".", nested)...)
			continue
		}
		fields = append(fields, FieldError{Field: prefix + field, Message: err.Error()})
	}
	return fields
}

// writeServiceError maps a service error onto the HTTP error taxonomy.
// Anything unrecognised is logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		writeValidation(w, verrs)
	case errors.Is(err, services.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, services.ErrProtectedRole):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, "email address is not verified")
	case errors.Is(err, services.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "invalid token")
	case errors.Is(err, services.ErrTokenExpired):
		writeError(w, StatusPageExpired, "page expired")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// normalizer is implemented by requests that clean their fields before validation.
type normalizer interface {
	normalize()
}

// decodeJSON reads a JSON body, normalizes it and runs its Validate method
// when it has one. It writes the error response itself and reports whether
// decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			var verrs validation.Errors
			if errors.As(err, &verrs) {
				writeValidation(w, verrs)
				return false
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name + " id")
	}
	return id, nil
}

// parsePageQuery reads page, limit (or per_page), search and order
// (order[key]/order[dir] or order_key/order_dir) from the query string.
func parsePageQuery(r *http.Request) (store.PageQuery, error) {
	query := r.URL.Query()
	q := store.PageQuery{Page: defaultPage, Limit: defaultLimit}

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return store.PageQuery{}, errors.New("invalid page")
		}
		q.Page = page
	}

	rawLimit := strings.TrimSpace(query.Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(query.Get("per_page"))
	}
	if rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return store.PageQuery{}, errors.New("invalid limit")
		}
		q.Limit = min(limit, maxLimit)
	}

	q.Search = strings.TrimSpace(query.Get("search"))
	q.OrderKey = firstNonEmpty(query.Get("order[key]"), query.Get("order_key"))
	q.OrderDir = firstNonEmpty(query.Get("order[dir]"), query.Get("order_dir"))
	return q, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// clientIP returns the caller address. Behind a trusted proxy RealIP has
// already replaced RemoteAddr with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func fieldErrors(field, message string) validation.Errors {
	return validation.Errors{field: errors.New(message)}
}
