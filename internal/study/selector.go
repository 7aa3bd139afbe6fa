package study

import (
	"fmt"
	"time"

	"github.com/kioku-app/kioku/internal/domain"
)

// Selector builds the ordered study queue for a deck and user. It is a pure
// query layer: calling it never mutates state, so it can be re-invoked after
// every review to pick the next card.
type Selector struct {
	queue QueueRepository

	// Now supplies the reference time for the due partition.
	Now func() time.Time
}

// NewSelector creates a selector over the given queue repository.
func NewSelector(queue QueueRepository) *Selector {
	return &Selector{queue: queue, Now: time.Now}
}

// Counts holds the deck-level partition sizes.
type Counts struct {
	Due int `json:"due"`
	New int `json:"new"`
}

// StudyQueue returns the cards to study: first the due partition (existing
// state with next_review <= now, most overdue first), then the new partition
// (no state for this user, oldest card first). limit <= 0 means no limit.
func (s *Selector) StudyQueue(deckID, userID int64, limit int) ([]domain.Card, error) {
	if err := s.resolveDeck(deckID); err != nil {
		return nil, err
	}
	now := s.Now()

	due, err := s.queue.DueCards(deckID, userID, now)
	if err != nil {
		return nil, err
	}
	fresh, err := s.queue.NewCards(deckID, userID)
	if err != nil {
		return nil, err
	}

	cards := append(due, fresh...)
	if limit > 0 && len(cards) > limit {
		cards = cards[:limit]
	}
	return cards, nil
}

// DeckCounts returns the due/new partition sizes for a deck. It is the
// single source of truth for "what counts as due" used by deck overviews.
func (s *Selector) DeckCounts(deckID, userID int64) (Counts, error) {
	if err := s.resolveDeck(deckID); err != nil {
		return Counts{}, err
	}
	now := s.Now()

	due, err := s.queue.CountDue(deckID, userID, now)
	if err != nil {
		return Counts{}, err
	}
	fresh, err := s.queue.CountNew(deckID, userID)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Due: due, New: fresh}, nil
}

func (s *Selector) resolveDeck(deckID int64) error {
	deck, err := s.queue.FindDeck(deckID)
	if err != nil {
		return err
	}
	if deck == nil {
		return fmt.Errorf("%w: deck %d", domain.ErrNotFound, deckID)
	}
	return nil
}
