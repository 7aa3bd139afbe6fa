// Package storage persists the scheduling engine's entities in SQLite and
// provides the atomic review transaction required by the study service.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kioku-app/kioku/internal/domain"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to
// date. Transactions take the write lock up front (_txlock=immediate) so a
// review's read-modify-write cannot interleave with a concurrent writer.
// The pragmas ride the DSN because database/sql pools connections; a PRAGMA
// issued through Exec would only reach one of them.
func Open(dsn string) (*DB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isLocked reports whether err is a SQLite busy/locked error, i.e. a
// concurrent writer held the row past the busy timeout.
func isLocked(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return false
}

// mapErr converts driver lock errors into the retryable conflict kind.
func mapErr(err error) error {
	if isLocked(err) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

// --- users ---

// InsertUser inserts a new user and returns its ID.
func (db *DB) InsertUser(name string, now time.Time) (int64, error) {
	res, err := db.conn.Exec(`INSERT INTO users (name, created_at) VALUES (?, ?)`, name, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user %s: %w", name, err)
	}
	return res.LastInsertId()
}

// FindUser retrieves a user by ID. Returns (nil, nil) when absent.
func (db *DB) FindUser(id int64) (*domain.User, error) {
	var u domain.User
	row := db.conn.QueryRow(`SELECT id, name, created_at FROM users WHERE id = ?`, id)
	if err := row.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user %d: %w", id, err)
	}
	return &u, nil
}

// FindUserByName retrieves a user by name. Returns (nil, nil) when absent.
func (db *DB) FindUserByName(name string) (*domain.User, error) {
	var u domain.User
	row := db.conn.QueryRow(`SELECT id, name, created_at FROM users WHERE name = ?`, name)
	if err := row.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user %s: %w", name, err)
	}
	return &u, nil
}

// --- sources ---

// Source is a card origin, either a local path or a git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`INSERT INTO sources (path, type) VALUES (?, ?)`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	return res.LastInsertId()
}

// FindSourceByPath retrieves a source by path. Returns (nil, nil) when absent.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`SELECT id, path, type, last_scanned FROM sources WHERE path = ?`, path)
	if err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`SELECT id, path, type, last_scanned FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64, now time.Time) error {
	_, err := db.conn.Exec(`UPDATE sources SET last_scanned = ? WHERE id = ?`, now, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source; its decks, cards, states and logs cascade.
func (db *DB) DeleteSource(id int64) error {
	if _, err := db.conn.Exec(`DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return nil
}

// --- decks ---

// InsertDeck inserts a deck and returns its ID. sourceID may be 0 for decks
// not managed by sync.
func (db *DB) InsertDeck(name string, sourceID int64, now time.Time) (int64, error) {
	var src any
	if sourceID != 0 {
		src = sourceID
	}
	res, err := db.conn.Exec(`INSERT INTO decks (name, source_id, created_at) VALUES (?, ?, ?)`, name, src, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deck %s: %w", name, err)
	}
	return res.LastInsertId()
}

// FindDeck retrieves a deck by ID. Returns (nil, nil) when absent.
func (db *DB) FindDeck(id int64) (*domain.Deck, error) {
	var (
		d   domain.Deck
		src sql.NullInt64
	)
	row := db.conn.QueryRow(`SELECT id, name, source_id, created_at FROM decks WHERE id = ?`, id)
	if err := row.Scan(&d.ID, &d.Name, &src, &d.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck %d: %w", id, err)
	}
	d.SourceID = src.Int64
	return &d, nil
}

// FindDeckBySource retrieves the deck owned by a source. Returns (nil, nil)
// when absent.
func (db *DB) FindDeckBySource(sourceID int64) (*domain.Deck, error) {
	var (
		d   domain.Deck
		src sql.NullInt64
	)
	row := db.conn.QueryRow(`SELECT id, name, source_id, created_at FROM decks WHERE source_id = ?`, sourceID)
	if err := row.Scan(&d.ID, &d.Name, &src, &d.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deck for source %d: %w", sourceID, err)
	}
	d.SourceID = src.Int64
	return &d, nil
}

// --- cards ---

const cardColumns = `id, deck_id, front, back, context, hash, created_at`

func scanCard(row interface{ Scan(...any) error }) (*domain.Card, error) {
	var c domain.Card
	err := row.Scan(&c.ID, &c.DeckID, &c.Front, &c.Back, &c.Context, &c.Hash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertCard inserts a new card and returns its ID.
func (db *DB) InsertCard(card domain.Card, now time.Time) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO cards (deck_id, front, back, context, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, card.DeckID, card.Front, card.Back, card.Context, card.Hash, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return res.LastInsertId()
}

// FindCard retrieves a card by ID. Returns (nil, nil) when absent.
func (db *DB) FindCard(id int64) (*domain.Card, error) {
	c, err := scanCard(db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return c, nil
}

// FindCardByHash retrieves a card by content hash. Returns (nil, nil) when absent.
func (db *DB) FindCardByHash(hash string) (*domain.Card, error) {
	c, err := scanCard(db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE hash = ?`, hash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return c, nil
}

// GetCardsByDeck retrieves all cards in a deck, oldest first.
func (db *DB) GetCardsByDeck(deckID int64) ([]domain.Card, error) {
	return db.queryCards(`
		SELECT `+cardColumns+` FROM cards WHERE deck_id = ? ORDER BY created_at, id
	`, deckID)
}

// DeleteCardByHash removes a card; its state and history cascade.
func (db *DB) DeleteCardByHash(hash string) error {
	if _, err := db.conn.Exec(`DELETE FROM cards WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("failed to delete card with hash %s: %w", hash, err)
	}
	return nil
}

func (db *DB) queryCards(query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// --- study queue partitions ---

// DueCards returns the cards in the deck whose memory state for the user is
// due at 'now', most overdue first.
func (db *DB) DueCards(deckID, userID int64, now time.Time) ([]domain.Card, error) {
	return db.queryCards(`
		SELECT c.id, c.deck_id, c.front, c.back, c.context, c.hash, c.created_at
		FROM cards c
		JOIN card_states s ON s.card_id = c.id AND s.user_id = ?
		WHERE c.deck_id = ? AND s.next_review <= ?
		ORDER BY s.next_review, c.id
	`, userID, deckID, now)
}

// NewCards returns the cards in the deck with no memory state for the user,
// in creation order. A state belonging to a different user does not count.
func (db *DB) NewCards(deckID, userID int64) ([]domain.Card, error) {
	return db.queryCards(`
		SELECT `+cardColumns+` FROM cards
		WHERE deck_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM card_states s WHERE s.card_id = cards.id AND s.user_id = ?
		  )
		ORDER BY created_at, id
	`, deckID, userID)
}

// CountDue returns the size of the due partition.
func (db *DB) CountDue(deckID, userID int64, now time.Time) (int, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM cards c
		JOIN card_states s ON s.card_id = c.id AND s.user_id = ?
		WHERE c.deck_id = ? AND s.next_review <= ?
	`, userID, deckID, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due cards: %w", err)
	}
	return n, nil
}

// CountNew returns the size of the new partition.
func (db *DB) CountNew(deckID, userID int64) (int, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*)
		FROM cards
		WHERE deck_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM card_states s WHERE s.card_id = cards.id AND s.user_id = ?
		  )
	`, deckID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count new cards: %w", err)
	}
	return n, nil
}

// --- card memory state ---

const stateColumns = `card_id, user_id, stability, difficulty, phase, learning_step,
	due, next_review, last_review, repetitions, lapses, created_at, updated_at`

func scanState(row interface{ Scan(...any) error }) (*domain.CardMemoryState, error) {
	var (
		st         domain.CardMemoryState
		lastReview sql.NullTime
	)
	err := row.Scan(&st.CardID, &st.UserID, &st.Stability, &st.Difficulty, &st.Phase,
		&st.LearningStep, &st.Due, &st.NextReview, &lastReview,
		&st.Repetitions, &st.Lapses, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastReview.Valid {
		st.LastReview = lastReview.Time
	}
	return &st, nil
}

// FindCardState retrieves the memory state for a (card, user) pair outside
// of any transaction. Returns (nil, nil) when the pair has never been
// reviewed.
func (db *DB) FindCardState(cardID, userID int64) (*domain.CardMemoryState, error) {
	st, err := scanState(db.conn.QueryRow(`
		SELECT `+stateColumns+` FROM card_states WHERE card_id = ? AND user_id = ?
	`, cardID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card state (%d, %d): %w", cardID, userID, err)
	}
	return st, nil
}

// CountReviewEvents returns the number of logged reviews for a pair.
func (db *DB) CountReviewEvents(cardID, userID int64) (int, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM review_logs WHERE card_id = ? AND user_id = ?
	`, cardID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count review events: %w", err)
	}
	return n, nil
}

// GetReviewEvents returns the logged reviews for a pair, oldest first.
func (db *DB) GetReviewEvents(cardID, userID int64) ([]domain.ReviewEvent, error) {
	rows, err := db.conn.Query(`
		SELECT id, card_id, user_id, rating, phase, stability, difficulty,
		       elapsed_days, scheduled_days, review_time, duration_ms
		FROM review_logs WHERE card_id = ? AND user_id = ?
		ORDER BY review_time, id
	`, cardID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query review events: %w", err)
	}
	defer rows.Close()

	var events []domain.ReviewEvent
	for rows.Next() {
		var ev domain.ReviewEvent
		if err := rows.Scan(&ev.ID, &ev.CardID, &ev.UserID, &ev.Rating, &ev.Phase,
			&ev.Stability, &ev.Difficulty, &ev.ElapsedDays, &ev.ScheduledDays,
			&ev.ReviewTime, &ev.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan review event row: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
