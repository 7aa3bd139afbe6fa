package domain

import "time"

// User is a registered learner. Memory state is tracked per user, so two
// users studying the same card progress independently.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Deck groups cards for study. Decks created by the sync pipeline carry the
// source they were reconciled from.
type Deck struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SourceID  int64     `json:"source_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Card is a single front/back entry. Hash is the normalized content identity
// used to dedupe cards across sync runs.
type Card struct {
	ID        int64     `json:"id"`
	DeckID    int64     `json:"deck_id"`
	Front     string    `json:"front"`
	Back      string    `json:"back"`
	Context   string    `json:"context,omitempty"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}
