package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/adminkit/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// TranslationEditor reads and edits locale files.
type TranslationEditor interface {
	Locales(ctx context.Context) ([]string, error)
	Lists(ctx context.Context, locale string) ([]string, error)
	Show(ctx context.Context, locale, list string) (services.Translation, error)
	Update(ctx context.Context, locale, list string, body services.Translation) (services.Translation, error)
}

type TranslationHandler struct {
	translations TranslationEditor
	logger       *slog.Logger
}

func NewTranslationHandler(translations TranslationEditor, logger *slog.Logger) *TranslationHandler {
	return &TranslationHandler{translations: translations, logger: logger}
}

// TranslationRouter registers translation routes. Reads are public;
// edits require an authenticated user who can update translations.
func TranslationRouter(r chi.Router, h *TranslationHandler, requireAuth func(http.Handler) http.Handler) {
	r.Get("/", h.Locales)
	r.Get("/{locale}", h.Lists)
	r.Get("/{locale}/{list}", h.Show)
	r.With(requireAuth, Can("update translation")).Put("/{locale}/{list}", h.Update)
}

func (h *TranslationHandler) Locales(w http.ResponseWriter, r *http.Request) {
	locales, err := h.translations.Locales(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, locales)
}

func (h *TranslationHandler) Lists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.translations.Lists(r.Context(), chi.URLParam(r, "locale"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *TranslationHandler) Show(w http.ResponseWriter, r *http.Request) {
	content, err := h.translations.Show(r.Context(), chi.URLParam(r, "locale"), chi.URLParam(r, "list"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (h *TranslationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body services.Translation
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	content, err := h.translations.Update(r.Context(), chi.URLParam(r, "locale"), chi.URLParam(r, "list"), body)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}
