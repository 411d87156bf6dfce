package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, deck, question, answer, context, difficulty, review_count, correct_count, next_review_date`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCard reads a card row, normalizing whatever difficulty was stored.
func scanCard(row rowScanner) (domain.Card, error) {
	var c domain.Card
	var rawDifficulty sql.NullFloat64
	err := row.Scan(
		&c.ID,
		&c.Deck,
		&c.Question,
		&c.Answer,
		&c.Context,
		&rawDifficulty,
		&c.ReviewCount,
		&c.CorrectCount,
		&c.NextReviewDate,
	)
	if err != nil {
		return domain.Card{}, err
	}
	c.Difficulty = difficulty.Normalize(rawDifficulty.Float64)
	return c, nil
}

// InsertCard inserts a new card into the database with the schedule it carries.
// A zero NextReviewDate makes the card due immediately.
func (db *DB) InsertCard(card domain.Card, sourceID int64) error {
	next := card.NextReviewDate
	if next.IsZero() {
		next = time.Now()
	}
	var source sql.NullInt64
	if sourceID > 0 {
		source = sql.NullInt64{Int64: sourceID, Valid: true}
	}
	_, err := db.conn.Exec(`
		INSERT INTO cards (id, deck, question, answer, context, difficulty, review_count, correct_count, next_review_date, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.ID,
		card.Deck,
		card.Question,
		card.Answer,
		card.Context,
		difficulty.Normalize(card.Difficulty),
		card.ReviewCount,
		card.CorrectCount,
		next,
		source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// FindCardByID retrieves a card by its ID. It returns nil if there is no such card.
func (db *DB) FindCardByID(id string) (*domain.Card, error) {
	row := db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return &c, nil
}

// CardsByDeck returns the cards of a deck in insertion order. An empty deck name
// returns every card.
func (db *DB) CardsByDeck(deck string) ([]domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards`
	var args []any
	if deck != "" {
		query += ` WHERE deck = ?`
		args = append(args, deck)
	}
	query += ` ORDER BY rowid`
	return db.queryCards(query, args...)
}

// GetCardsBySourceID retrieves all cards associated with a specific source ID.
func (db *DB) GetCardsBySourceID(sourceID int64) ([]domain.Card, error) {
	cards, err := db.queryCards(`SELECT `+cardColumns+` FROM cards WHERE source_id = ? ORDER BY rowid`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source ID %d: %w", sourceID, err)
	}
	return cards, nil
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
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// DeleteCardByID removes a card from the database.
func (db *DB) DeleteCardByID(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// Deck summarizes one deck for the deck list.
type Deck struct {
	Name      string `json:"name"`
	CardCount int    `json:"card_count"`
	DueCount  int    `json:"due_count"`
}

// Decks lists every deck with its card count and the number of cards due at now.
func (db *DB) Decks(now time.Time) ([]Deck, error) {
	rows, err := db.conn.Query(`SELECT deck, next_review_date FROM cards ORDER BY deck`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []Deck
	for rows.Next() {
		var name string
		var next time.Time
		if err := rows.Scan(&name, &next); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		if len(decks) == 0 || decks[len(decks)-1].Name != name {
			decks = append(decks, Deck{Name: name})
		}
		d := &decks[len(decks)-1]
		d.CardCount++
		if !next.After(now) {
			d.DueCount++
		}
	}
	return decks, rows.Err()
}

// SaveReview appends a review to the log and moves the card to the schedule the
// review carries, but only when its version is above the card's. Writes may land
// in any order; the card ends on the schedule of the highest version.
func (db *DB) SaveReview(ctx context.Context, r domain.Review) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reviews (card_id, was_correct, response_time_ms, difficulty, next_review_date, reviewed_at, version, reverts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.CardID,
		r.WasCorrect,
		r.ResponseTime.Milliseconds(),
		r.Difficulty,
		r.NextReviewDate,
		r.ReviewedAt,
		r.Version,
		r.Reverts,
	); err != nil {
		return fmt.Errorf("failed to insert review for card %s: %w", r.CardID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET difficulty = ?, review_count = ?, correct_count = ?, next_review_date = ?, version = ?
		WHERE id = ? AND version < ?
	`,
		r.Difficulty,
		r.ReviewCount,
		r.CorrectCount,
		r.NextReviewDate,
		r.Version,
		r.CardID,
		r.Version,
	); err != nil {
		return fmt.Errorf("failed to update schedule for card %s: %w", r.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review for card %s: %w", r.CardID, err)
	}
	return nil
}

// ReviewsForCard returns the answers given to a card, oldest first. Undone
// answers and the undo records themselves are left out.
func (db *DB) ReviewsForCard(cardID string) ([]domain.Review, error) {
	rows, err := db.conn.Query(`
		SELECT card_id, was_correct, response_time_ms, difficulty, next_review_date, reviewed_at, version
		FROM reviews
		WHERE card_id = ? AND reverts = 0
		  AND version NOT IN (SELECT reverts FROM reviews WHERE card_id = ? AND reverts <> 0)
		ORDER BY version, id
	`, cardID, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var r domain.Review
		var ms int64
		if err := rows.Scan(&r.CardID, &r.WasCorrect, &ms, &r.Difficulty, &r.NextReviewDate, &r.ReviewedAt, &r.Version); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.ResponseTime = time.Duration(ms) * time.Millisecond
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// StarredIDs returns the starred card IDs in the order they were starred.
func (db *DB) StarredIDs() ([]string, error) {
	rows, err := db.conn.Query(`SELECT card_id FROM starred ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to get starred cards: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan starred row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStarred stars or unstars a card.
func (db *DB) SetStarred(cardID string, starred bool) error {
	var err error
	if starred {
		_, err = db.conn.Exec(`INSERT OR IGNORE INTO starred (card_id, starred_at) VALUES (?, ?)`, cardID, time.Now())
	} else {
		_, err = db.conn.Exec(`DELETE FROM starred WHERE card_id = ?`, cardID)
	}
	if err != nil {
		return fmt.Errorf("failed to set starred=%t for card %s: %w", starred, cardID, err)
	}
	return nil
}
