package storage

import (
	"database/sql"
	"fmt"

	"github.com/kioku-app/kioku/internal/domain"
	"github.com/kioku-app/kioku/internal/study"
)

// reviewTx is the transactional view handed to the study service. The
// connection was opened with _txlock=immediate, so the write lock is taken
// when the transaction begins, serializing concurrent reviews of the same
// pair.
type reviewTx struct {
	tx *sql.Tx
}

var _ study.ReviewTx = (*reviewTx)(nil)
var _ study.StateRepository = (*DB)(nil)

// Review runs fn inside one transaction. Lock contention that outlives the
// busy timeout is reported as domain.ErrConflict; the caller may retry the
// whole operation, which repeats the read-modify-write with a fresh read.
func (db *DB) Review(fn func(tx study.ReviewTx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin review transaction: %w", err))
	}

	if err := fn(&reviewTx{tx: tx}); err != nil {
		tx.Rollback()
		return mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("failed to commit review transaction: %w", err))
	}
	return nil
}

// CardState reads the pair's state inside the transaction. Returns
// (nil, nil) when the pair has never been reviewed.
func (t *reviewTx) CardState(cardID, userID int64) (*domain.CardMemoryState, error) {
	st, err := scanState(t.tx.QueryRow(`
		SELECT `+stateColumns+` FROM card_states WHERE card_id = ? AND user_id = ?
	`, cardID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read card state (%d, %d): %w", cardID, userID, err)
	}
	return st, nil
}

// SaveCardState upserts the pair's memory state.
func (t *reviewTx) SaveCardState(st *domain.CardMemoryState) error {
	var lastReview any
	if !st.LastReview.IsZero() {
		lastReview = st.LastReview
	}
	_, err := t.tx.Exec(`
		INSERT INTO card_states (card_id, user_id, stability, difficulty, phase,
			learning_step, due, next_review, last_review, repetitions, lapses,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_id, user_id) DO UPDATE SET
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			phase = excluded.phase,
			learning_step = excluded.learning_step,
			due = excluded.due,
			next_review = excluded.next_review,
			last_review = excluded.last_review,
			repetitions = excluded.repetitions,
			lapses = excluded.lapses,
			updated_at = excluded.updated_at
	`, st.CardID, st.UserID, st.Stability, st.Difficulty, int(st.Phase),
		st.LearningStep, st.Due, st.NextReview, lastReview,
		st.Repetitions, st.Lapses, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save card state (%d, %d): %w", st.CardID, st.UserID, err)
	}
	return nil
}

// AppendEvent appends one review history record. Rows in review_logs are
// never updated or deleted by the engine.
func (t *reviewTx) AppendEvent(ev *domain.ReviewEvent) error {
	res, err := t.tx.Exec(`
		INSERT INTO review_logs (card_id, user_id, rating, phase, stability,
			difficulty, elapsed_days, scheduled_days, review_time, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.CardID, ev.UserID, int(ev.Rating), int(ev.Phase), ev.Stability,
		ev.Difficulty, ev.ElapsedDays, ev.ScheduledDays, ev.ReviewTime, ev.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to append review event: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}
