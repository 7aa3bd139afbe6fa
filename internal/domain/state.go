package domain

import "time"

// CardMemoryState is the persistent memory model state for one card × user
// pair. Exactly one row exists per pair; it is created lazily on first
// access and mutated only by the study service.
//
// Invariant: Phase == New ⇔ LastReview is zero ⇔ Repetitions == 0.
type CardMemoryState struct {
	CardID     int64   `json:"card_id"`
	UserID     int64   `json:"user_id"`
	Stability  float64 `json:"stability"`
	Difficulty float64 `json:"difficulty"`
	Phase      Phase   `json:"phase"`
	// LearningStep is the position within the learning/relearning steps.
	// Meaningful only while Phase is Learning or Relearning.
	LearningStep int       `json:"learning_step"`
	Due          time.Time `json:"due"`
	// NextReview mirrors Due; Due is canonical, NextReview is the
	// denormalized read path kept equal on every write.
	NextReview  time.Time `json:"next_review"`
	LastReview  time.Time `json:"last_review,omitzero"`
	Repetitions int       `json:"repetitions"`
	Lapses      int       `json:"lapses"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCardMemoryState returns the default state for a never-reviewed pair:
// zero stability and difficulty, New phase, due immediately.
func NewCardMemoryState(cardID, userID int64, now time.Time) *CardMemoryState {
	return &CardMemoryState{
		CardID:     cardID,
		UserID:     userID,
		Phase:      New,
		Due:        now,
		NextReview: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsDue reports whether the card should be shown at the given time.
func (s *CardMemoryState) IsDue(now time.Time) bool {
	return !s.NextReview.After(now)
}

// ReviewEvent is one append-only record of a review action. The phase,
// stability and difficulty fields snapshot the state *before* the update so
// the history can be replayed or audited.
type ReviewEvent struct {
	ID            int64     `json:"id"`
	CardID        int64     `json:"card_id"`
	UserID        int64     `json:"user_id"`
	Rating        Rating    `json:"rating"`
	Phase         Phase     `json:"phase"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   float64   `json:"elapsed_days"`
	ScheduledDays float64   `json:"scheduled_days"`
	ReviewTime    time.Time `json:"review_time"`
	DurationMs    int64     `json:"duration_ms"`
}
