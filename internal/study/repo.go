// Package study orchestrates card reviews: it owns the only mutation path
// into the per-(card,user) memory state and builds the ordered study queue.
// Persistence is consumed through the small repository interfaces below;
// the SQLite implementations live in internal/storage.
package study

import (
	"time"

	"github.com/kioku-app/kioku/internal/domain"
)

// CardRepository resolves card and user identities.
type CardRepository interface {
	// FindCard returns (nil, nil) when the card does not exist.
	FindCard(id int64) (*domain.Card, error)
	// FindUser returns (nil, nil) when the user does not exist.
	FindUser(id int64) (*domain.User, error)
}

// ReviewTx is the transactional view used inside one review. All three
// operations commit or roll back together.
type ReviewTx interface {
	// CardState returns (nil, nil) when the pair has never been reviewed.
	CardState(cardID, userID int64) (*domain.CardMemoryState, error)
	// SaveCardState upserts the pair's memory state.
	SaveCardState(st *domain.CardMemoryState) error
	// AppendEvent appends one immutable history record.
	AppendEvent(ev *domain.ReviewEvent) error
}

// StateRepository owns the memory state rows.
type StateRepository interface {
	// FindCardState reads outside a transaction; (nil, nil) when absent.
	FindCardState(cardID, userID int64) (*domain.CardMemoryState, error)
	// Review runs fn atomically: either every write inside fn is
	// persisted or none is. A concurrent-write failure is reported as
	// domain.ErrConflict and may be retried by the caller.
	Review(fn func(tx ReviewTx) error) error
}

// QueueRepository serves the due/new partitions for the selector.
type QueueRepository interface {
	// FindDeck returns (nil, nil) when the deck does not exist.
	FindDeck(id int64) (*domain.Deck, error)
	DueCards(deckID, userID int64, now time.Time) ([]domain.Card, error)
	NewCards(deckID, userID int64) ([]domain.Card, error)
	CountDue(deckID, userID int64, now time.Time) (int, error)
	CountNew(deckID, userID int64) (int, error)
}
