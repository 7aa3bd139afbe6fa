package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kioku-app/kioku/internal/domain"
	"github.com/kioku-app/kioku/internal/fsrs"
	"github.com/kioku-app/kioku/internal/storage"
	"github.com/kioku-app/kioku/internal/study"
)

func newTestServer(t *testing.T) (*Server, int64, int64, int64) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	userID, err := db.InsertUser("alice", now)
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	deckID, err := db.InsertDeck("go", 0, now)
	if err != nil {
		t.Fatalf("InsertDeck: %v", err)
	}
	cardID, err := db.InsertCard(domain.Card{
		DeckID: deckID, Front: "Q", Back: "A", Hash: "h1",
	}, now)
	if err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	service := study.NewService(db, db, fsrs.Default())
	selector := study.NewSelector(db)
	return NewServer(db, service, selector), userID, deckID, cardID
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func TestGetQueue(t *testing.T) {
	srv, userID, deckID, cardID := newTestServer(t)

	w := do(t, srv, "GET", fmt.Sprintf("/decks/%d/queue?user=%d", deckID, userID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp struct {
		Cards []domain.Card `json:"cards"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cards) != 1 || resp.Cards[0].ID != cardID {
		t.Errorf("cards = %+v, want the one seeded card", resp.Cards)
	}
}

func TestGetQueueMissingUser(t *testing.T) {
	srv, _, deckID, _ := newTestServer(t)

	w := do(t, srv, "GET", fmt.Sprintf("/decks/%d/queue", deckID), "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without ?user=", w.Code)
	}
}

func TestGetQueueUnknownDeck(t *testing.T) {
	srv, userID, _, _ := newTestServer(t)

	w := do(t, srv, "GET", fmt.Sprintf("/decks/999/queue?user=%d", userID), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unknown deck", w.Code)
	}
}

func TestGetCounts(t *testing.T) {
	srv, userID, deckID, _ := newTestServer(t)

	w := do(t, srv, "GET", fmt.Sprintf("/decks/%d/counts?user=%d", deckID, userID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var counts study.Counts
	if err := json.NewDecoder(w.Body).Decode(&counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if counts.Due != 0 || counts.New != 1 {
		t.Errorf("counts = %+v, want 0 due / 1 new", counts)
	}
}

func TestPostReview(t *testing.T) {
	srv, userID, _, cardID := newTestServer(t)

	body := fmt.Sprintf(`{"user_id": %d, "rating": "Good", "duration_ms": 1500}`, userID)
	w := do(t, srv, "POST", fmt.Sprintf("/cards/%d/review", cardID), body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	var state domain.CardMemoryState
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Phase != domain.Learning {
		t.Errorf("Phase = %v, want Learning after the first review", state.Phase)
	}
	if state.Repetitions != 1 {
		t.Errorf("Repetitions = %d, want 1", state.Repetitions)
	}
}

func TestPostReviewNumericRating(t *testing.T) {
	srv, userID, _, cardID := newTestServer(t)

	body := fmt.Sprintf(`{"user_id": %d, "rating": 3}`, userID)
	w := do(t, srv, "POST", fmt.Sprintf("/cards/%d/review", cardID), body)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d for numeric rating, body = %s", w.Code, w.Body)
	}
}

func TestPostReviewInvalidRating(t *testing.T) {
	srv, userID, _, cardID := newTestServer(t)

	body := fmt.Sprintf(`{"user_id": %d, "rating": 9}`, userID)
	w := do(t, srv, "POST", fmt.Sprintf("/cards/%d/review", cardID), body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an out-of-range rating", w.Code)
	}
}

func TestPostReviewUnknownCard(t *testing.T) {
	srv, userID, _, _ := newTestServer(t)

	body := fmt.Sprintf(`{"user_id": %d, "rating": "Good"}`, userID)
	w := do(t, srv, "POST", "/cards/999/review", body)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unknown card", w.Code)
	}
}

func TestGetIntervals(t *testing.T) {
	srv, userID, _, cardID := newTestServer(t)

	w := do(t, srv, "GET", fmt.Sprintf("/cards/%d/intervals?user=%d", cardID, userID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var intervals map[string]string
	if err := json.NewDecoder(w.Body).Decode(&intervals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(intervals) != 4 {
		t.Fatalf("got %d intervals, want 4: %v", len(intervals), intervals)
	}
	if intervals["Again"] != "1分" {
		t.Errorf("intervals[again] = %q, want 1分", intervals["Again"])
	}

	// Previewing must not move the card out of the new partition.
	st, err := srv.db.FindCardState(cardID, userID)
	if err != nil {
		t.Fatalf("FindCardState: %v", err)
	}
	if st != nil {
		t.Error("preview persisted a card state")
	}
}

func TestPostSyncWithoutSources(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := do(t, srv, "POST", "/sync", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", w.Code, w.Body)
	}
}
