package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/internal/content"
)

// ContentAPI is the slice of the content client the handlers use.
type ContentAPI interface {
	Predictions(ctx context.Context, token string, q content.PredictionsQuery) ([]content.Prediction, error)
	Prediction(ctx context.Context, token, id string) (*content.Prediction, error)
	News(ctx context.Context) ([]content.NewsItem, error)
}

// ContentHandler proxies prediction and news fetches, attaching the
// session's bearer token so VIP entries resolve for entitled users.
type ContentHandler struct {
	content ContentAPI
	manager SessionManager
	logger  *slog.Logger
}

// NewContentHandler creates the content proxy handler.
func NewContentHandler(c ContentAPI, manager SessionManager, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{content: c, manager: manager, logger: logger}
}

// Predictions handles GET /api/v1/predictions
func (h *ContentHandler) Predictions(w http.ResponseWriter, r *http.Request) {
	q := content.PredictionsQuery{
		Date:     r.URL.Query().Get("date"),
		Category: r.URL.Query().Get("category"),
	}
	preds, err := h.content.Predictions(r.Context(), h.manager.AccessToken(), q)
	if err != nil {
		h.logger.Warn("predictions fetch failed", slog.String("error", err.Error()))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: map[string]any{"predictions": preds}})
}

// Prediction handles GET /api/v1/predictions/{id}
func (h *ContentHandler) Prediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pred, err := h.content.Prediction(r.Context(), h.manager.AccessToken(), id)
	if err != nil {
		h.logger.Warn("prediction fetch failed",
			slog.String("prediction_id", id),
			slog.String("error", err.Error()),
		)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: map[string]any{"prediction": pred}})
}

// News handles GET /api/v1/news
func (h *ContentHandler) News(w http.ResponseWriter, r *http.Request) {
	items, err := h.content.News(r.Context())
	if err != nil {
		h.logger.Warn("news fetch failed", slog.String("error", err.Error()))
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Data: map[string]any{"news": items}})
}
