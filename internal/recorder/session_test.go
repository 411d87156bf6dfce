package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/domain"
	"github.com/conorfennell/flashstudy/internal/session"
	"github.com/conorfennell/flashstudy/internal/storage"
)

// failOnceStore fails the first save of every correct answer.
type failOnceStore struct {
	*storage.DB

	mu     sync.Mutex
	failed map[int64]bool
}

func (s *failOnceStore) SaveReview(ctx context.Context, r domain.Review) error {
	s.mu.Lock()
	fail := r.WasCorrect && !s.failed[r.Version]
	if fail {
		s.failed[r.Version] = true
	}
	s.mu.Unlock()
	if fail {
		return errors.New("database is locked")
	}
	return s.DB.SaveReview(ctx, r)
}

func TestRetriedUndoneAnswerDoesNotWin(t *testing.T) {
	t0 := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	card := domain.Card{ID: "a", Question: "q", Difficulty: 2.5, NextReviewDate: t0.Add(-time.Hour)}
	if err := db.InsertCard(card, 0); err != nil {
		t.Fatalf("insert card: %v", err)
	}

	store := &failOnceStore{DB: db, failed: map[int64]bool{}}
	cfg := fastConfig()
	cfg.InitialBackoff = 20 * time.Millisecond
	cfg.MaxBackoff = 40 * time.Millisecond
	rec := New(store, cfg, nil)
	rec.Start(context.Background())

	var mu sync.Mutex
	now := t0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	m := session.NewMachine(difficulty.New(difficulty.DefaultParams()),
		session.WithPersistence(rec),
		session.WithClock(clock),
	)
	if err := m.Start([]domain.Card{card}, session.StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := m.Respond(true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	m.Undo()
	if _, err := m.Respond(false); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	rec.Close()

	if got := rec.Counts(); got.Saved != 3 || got.Failed != 0 {
		t.Fatalf("Expected 3 saved reviews, but got %+v", got)
	}

	want := m.Snapshot().Cards[0]
	stored, err := db.FindCardByID("a")
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if stored.Difficulty != want.Difficulty || stored.CorrectCount != want.CorrectCount ||
		stored.ReviewCount != want.ReviewCount || !stored.NextReviewDate.Equal(want.NextReviewDate) {
		t.Errorf("Expected the stored card to match the session card %+v, but got %+v", want, stored)
	}

	reviews, err := db.ReviewsForCard("a")
	if err != nil {
		t.Fatalf("reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].WasCorrect {
		t.Errorf("Expected only the final incorrect answer in the log, but got %+v", reviews)
	}
}

func TestUndoneAnswerIsRevertedInStorage(t *testing.T) {
	t0 := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	card := domain.Card{ID: "a", Question: "q", Difficulty: 2.5, NextReviewDate: t0.Add(-time.Hour)}
	if err := db.InsertCard(card, 0); err != nil {
		t.Fatalf("insert card: %v", err)
	}

	rec := New(db, fastConfig(), nil)
	rec.Start(context.Background())
	m := session.NewMachine(nil,
		session.WithPersistence(rec),
		session.WithClock(func() time.Time { return t0 }),
	)
	if err := m.Start([]domain.Card{card, {ID: "b", Question: "q2"}}, session.StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Respond(true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	m.Undo()
	rec.Close()

	stored, err := db.FindCardByID("a")
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if stored.Difficulty != 2.5 || stored.ReviewCount != 0 || !stored.NextReviewDate.Equal(card.NextReviewDate) {
		t.Errorf("Expected the undone answer to be rolled back, but got %+v", stored)
	}
}
