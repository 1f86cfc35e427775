// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"review_scraper/internal/domain"
)

// Scraper is the aggregation entry point the handlers call.
type Scraper interface {
	Aggregate(ctx context.Context, req domain.ScrapeRequest) ([]domain.Review, error)
}

type Handlers struct {
	S       Scraper
	Version string
	APIKey  string
}

type scrapeResponse struct {
	Success bool            `json:"success"`
	Data    []domain.Review `json:"data"`
}

type detail struct {
	Detail string `json:"detail"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/", h.root)
	s.mux.Get("/health", h.health)
	s.mux.With(APIKey(h.APIKey)).Post("/scrape", h.scrape)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

func (h *Handlers) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Scraper API is running",
		"version": h.Version,
		"endpoints": map[string]string{
			"root":    "/",
			"health":  "/health",
			"scrape":  "/scrape",
			"metrics": "/metrics",
		},
	})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": h.Version})
}

func (h *Handlers) scrape(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set("X-Scrape-ID", id)
	l := log.With().Str("scrape_id", id).Logger()
	ctx := l.WithContext(r.Context())

	var req domain.ScrapeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		l.Warn().Err(err).Msg("bad scrape body")
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	l.Info().Str("apple", req.AppleStore).Str("play", req.GooglePlay).Msg("scrape received")

	start := time.Now()
	reviews, err := h.S.Aggregate(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// client went away; nobody reads the response
			l.Info().Err(err).Msg("scrape abandoned")
			return
		}
		l.Error().Err(err).Msg("scrape failed")
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	l.Info().Int("reviews", len(reviews)).Dur("duration", time.Since(start)).Msg("scrape done")
	writeJSON(w, http.StatusOK, scrapeResponse{Success: true, Data: reviews})
}
