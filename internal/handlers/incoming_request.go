package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/adminkit/apiserver/types"
	"github.com/go-chi/chi/v5"
)

type RequestStats interface {
	Averages(ctx context.Context) ([]types.RequestAverage, error)
}

type IncomingRequestHandler struct {
	stats  RequestStats
	logger *slog.Logger
}

func NewIncomingRequestHandler(stats RequestStats, logger *slog.Logger) *IncomingRequestHandler {
	return &IncomingRequestHandler{stats: stats, logger: logger}
}

func IncomingRequestRouter(r chi.Router, h *IncomingRequestHandler) {
	r.Get("/average", h.Average)
}

// Average reports the mean response time per route and method.
func (h *IncomingRequestHandler) Average(w http.ResponseWriter, r *http.Request) {
	averages, err := h.stats.Averages(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if averages == nil {
		averages = []types.RequestAverage{}
	}
	writeJSON(w, http.StatusOK, averages)
}
