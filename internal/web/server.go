// Package web exposes the scheduling engine over a small JSON API. It only
// decodes requests and encodes results; all scheduling semantics live in
// internal/study.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kioku-app/kioku/internal/domain"
	"github.com/kioku-app/kioku/internal/storage"
	"github.com/kioku-app/kioku/internal/study"
	syncer "github.com/kioku-app/kioku/internal/sync"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	service  *study.Service
	selector *study.Selector
	router   *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, service *study.Service, selector *study.Selector) *Server {
	s := &Server{
		db:       db,
		service:  service,
		selector: selector,
		router:   http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /decks/{deck}/queue", s.handleGetQueue())
	s.router.HandleFunc("GET /decks/{deck}/counts", s.handleGetCounts())
	s.router.HandleFunc("POST /cards/{card}/review", s.handlePostReview())
	s.router.HandleFunc("GET /cards/{card}/intervals", s.handleGetIntervals())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps engine error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRating), errors.Is(err, domain.ErrInvalidTimeOrder):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pathID parses the named path segment as an int64.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil
}

// queryUser parses the mandatory ?user= parameter.
func queryUser(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	return id, err == nil
}

// handleGetQueue returns the ordered study queue for a deck and user.
func (s *Server) handleGetQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deckID, ok := pathID(r, "deck")
		if !ok {
			http.Error(w, "invalid deck ID", http.StatusBadRequest)
			return
		}
		userID, ok := queryUser(r)
		if !ok {
			http.Error(w, "missing or invalid user", http.StatusBadRequest)
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		cards, err := s.selector.StudyQueue(deckID, userID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
	}
}

// handleGetCounts returns the due/new partition sizes for a deck.
func (s *Server) handleGetCounts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deckID, ok := pathID(r, "deck")
		if !ok {
			http.Error(w, "invalid deck ID", http.StatusBadRequest)
			return
		}
		userID, ok := queryUser(r)
		if !ok {
			http.Error(w, "missing or invalid user", http.StatusBadRequest)
			return
		}

		counts, err := s.selector.DeckCounts(deckID, userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

type reviewRequest struct {
	UserID     int64         `json:"user_id"`
	Rating     domain.Rating `json:"rating"`
	DurationMs int64         `json:"duration_ms"`
	ReviewTime time.Time     `json:"review_time,omitzero"`
}

// handlePostReview applies one review to a card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cardID, ok := pathID(r, "card")
		if !ok {
			http.Error(w, "invalid card ID", http.StatusBadRequest)
			return
		}
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		state, err := s.service.ReviewCard(cardID, req.UserID, req.Rating, req.DurationMs, req.ReviewTime)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// handleGetIntervals returns the preview interval for each rating.
func (s *Server) handleGetIntervals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cardID, ok := pathID(r, "card")
		if !ok {
			http.Error(w, "invalid card ID", http.StatusBadRequest)
			return
		}
		userID, ok := queryUser(r)
		if !ok {
			http.Error(w, "missing or invalid user", http.StatusBadRequest)
			return
		}

		intervals, err := s.service.PreviewIntervals(cardID, userID, time.Time{})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, intervals)
	}
}

// handlePostSync reconciles all registered card sources in the foreground.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := syncer.Run(s.db); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
