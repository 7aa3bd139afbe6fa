package study

import (
	"fmt"
	"time"

	"github.com/kioku-app/kioku/internal/domain"
	"github.com/kioku-app/kioku/internal/fsrs"
	"github.com/kioku-app/kioku/internal/interval"
)

// Service is the scheduling service. It loads or lazily creates the memory
// state for a (card, user) pair, runs the memory model, updates the review
// counters, persists the state and appends the history record — all inside
// one transaction.
type Service struct {
	cards  CardRepository
	states StateRepository
	model  *fsrs.Model

	// Now supplies the current time when the caller passes a zero review
	// time. Tests replace it with a fixed clock.
	Now func() time.Time
}

// NewService creates a scheduling service backed by the given repositories
// and memory model.
func NewService(cards CardRepository, states StateRepository, model *fsrs.Model) *Service {
	return &Service{
		cards:  cards,
		states: states,
		model:  model,
		Now:    time.Now,
	}
}

// ReviewCard applies one review and returns the updated memory state.
// A zero reviewTime defaults to the current time.
//
// Errors: domain.ErrInvalidRating (no mutation occurs), domain.ErrNotFound
// for an unresolvable card or user, domain.ErrInvalidTimeOrder when
// reviewTime precedes the recorded last review, and domain.ErrConflict
// (retryable) when a concurrent review of the same pair wins the write.
func (s *Service) ReviewCard(cardID, userID int64, rating domain.Rating, durationMs int64, reviewTime time.Time) (*domain.CardMemoryState, error) {
	if !rating.IsValid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}
	if err := s.resolve(cardID, userID); err != nil {
		return nil, err
	}
	if reviewTime.IsZero() {
		reviewTime = s.Now()
	}

	var updated *domain.CardMemoryState
	err := s.states.Review(func(tx ReviewTx) error {
		st, err := tx.CardState(cardID, userID)
		if err != nil {
			return err
		}
		if st == nil {
			st = domain.NewCardMemoryState(cardID, userID, reviewTime)
		}

		// Pre-update snapshot for the history record.
		prePhase := st.Phase
		preStability := st.Stability
		preDifficulty := st.Difficulty
		elapsedDays := 0.0
		if !st.LastReview.IsZero() {
			elapsedDays = reviewTime.Sub(st.LastReview).Hours() / 24.0
		}

		out, err := s.model.Next(st, rating, reviewTime)
		if err != nil {
			return err
		}

		st.Stability = out.Stability
		st.Difficulty = out.Difficulty
		st.Phase = out.Phase
		st.LearningStep = out.LearningStep
		st.Due = out.Due
		st.NextReview = out.Due
		st.LastReview = reviewTime
		st.Repetitions++
		if rating == domain.Again && (prePhase == domain.Review || prePhase == domain.Relearning) {
			st.Lapses++
		}
		st.UpdatedAt = reviewTime

		if err := tx.SaveCardState(st); err != nil {
			return err
		}
		if err := tx.AppendEvent(&domain.ReviewEvent{
			CardID:        cardID,
			UserID:        userID,
			Rating:        rating,
			Phase:         prePhase,
			Stability:     preStability,
			Difficulty:    preDifficulty,
			ElapsedDays:   elapsedDays,
			ScheduledDays: out.Interval.Hours() / 24.0,
			ReviewTime:    reviewTime,
			DurationMs:    durationMs,
		}); err != nil {
			return err
		}

		updated = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PreviewIntervals returns, for each of the four ratings, the formatted
// interval the card would receive if reviewed now. It is strictly read-only:
// when the pair has no memory state yet, a transient New-phase state is used
// and nothing is persisted. A zero reviewTime defaults to the current time.
func (s *Service) PreviewIntervals(cardID, userID int64, reviewTime time.Time) (map[domain.Rating]string, error) {
	if err := s.resolve(cardID, userID); err != nil {
		return nil, err
	}
	if reviewTime.IsZero() {
		reviewTime = s.Now()
	}

	st, err := s.states.FindCardState(cardID, userID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = domain.NewCardMemoryState(cardID, userID, reviewTime)
	}

	intervals := make(map[domain.Rating]string, 4)
	for _, rating := range domain.Ratings() {
		out, err := s.model.Next(st, rating, reviewTime)
		if err != nil {
			return nil, err
		}
		intervals[rating] = interval.FormatSeconds(out.Due.Sub(reviewTime).Seconds())
	}
	return intervals, nil
}

// resolve checks that both the card and the user exist.
func (s *Service) resolve(cardID, userID int64) error {
	card, err := s.cards.FindCard(cardID)
	if err != nil {
		return err
	}
	if card == nil {
		return fmt.Errorf("%w: card %d", domain.ErrNotFound, cardID)
	}
	user, err := s.cards.FindUser(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	return nil
}
