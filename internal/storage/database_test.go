package storage

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/conorfennell/flashstudy/internal/domain"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndFindCard(t *testing.T) {
	db := setupTestDB(t)
	card := domain.Card{
		ID:             "abc",
		Deck:           "go",
		Question:       "What is a goroutine?",
		Answer:         "A lightweight thread",
		NextReviewDate: now,
	}
	if err := db.InsertCard(card, 0); err != nil {
		t.Fatalf("insert card: %v", err)
	}

	got, err := db.FindCardByID("abc")
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if got == nil {
		t.Fatal("Expected card to be found")
	}
	if got.Question != card.Question || got.Deck != "go" {
		t.Errorf("Unexpected card %+v", got)
	}
	if got.Difficulty != 2.5 {
		t.Errorf("Expected default difficulty 2.5, but got %.2f", got.Difficulty)
	}
	if !got.NextReviewDate.Equal(now) {
		t.Errorf("Expected next review %v, but got %v", now, got.NextReviewDate)
	}

	missing, err := db.FindCardByID("nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for a missing card, but got %v, %v", missing, err)
	}
}

func TestLegacyDifficultyIsNormalized(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.conn.Exec(`
		INSERT INTO cards (id, deck, question, difficulty, next_review_date) VALUES
		('legacy', 'd', 'q', 350, ?),
		('zero', 'd', 'q', 0, ?),
		('low', 'd', 'q', 1.1, ?)
	`, now, now, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cards, err := db.CardsByDeck("d")
	if err != nil {
		t.Fatalf("cards by deck: %v", err)
	}
	expected := map[string]float64{"legacy": 3.5, "zero": 2.5, "low": 1.3}
	for _, c := range cards {
		if c.Difficulty != expected[c.ID] {
			t.Errorf("Expected %s difficulty %.2f, but got %.2f", c.ID, expected[c.ID], c.Difficulty)
		}
	}
}

func TestCardsByDeckKeepsInsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	for _, c := range []domain.Card{
		{ID: "z", Deck: "one", Question: "q", NextReviewDate: now},
		{ID: "a", Deck: "two", Question: "q", NextReviewDate: now.Add(time.Hour)},
		{ID: "m", Deck: "one", Question: "q", NextReviewDate: now},
	} {
		if err := db.InsertCard(c, 0); err != nil {
			t.Fatalf("insert card: %v", err)
		}
	}

	one, err := db.CardsByDeck("one")
	if err != nil {
		t.Fatalf("cards by deck: %v", err)
	}
	if len(one) != 2 || one[0].ID != "z" || one[1].ID != "m" {
		t.Errorf("Expected [z m], but got %+v", one)
	}

	all, err := db.CardsByDeck("")
	if err != nil {
		t.Fatalf("all cards: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 cards, but got %d", len(all))
	}

	decks, err := db.Decks(now)
	if err != nil {
		t.Fatalf("decks: %v", err)
	}
	want := []Deck{{Name: "one", CardCount: 2, DueCount: 2}, {Name: "two", CardCount: 1, DueCount: 0}}
	if !slices.Equal(decks, want) {
		t.Errorf("Expected decks %+v, but got %+v", want, decks)
	}
}

func TestSaveReview(t *testing.T) {
	db := setupTestDB(t)
	if err := db.InsertCard(domain.Card{ID: "c1", Question: "q", NextReviewDate: now}, 0); err != nil {
		t.Fatalf("insert card: %v", err)
	}

	first := domain.Review{
		CardID:         "c1",
		WasCorrect:     true,
		ResponseTime:   1200 * time.Millisecond,
		Difficulty:     2.65,
		NextReviewDate: now.Add(24 * time.Hour),
		ReviewCount:    1,
		CorrectCount:   1,
		ReviewedAt:     now,
		Version:        10,
	}
	if err := db.SaveReview(context.Background(), first); err != nil {
		t.Fatalf("save review: %v", err)
	}

	card, err := db.FindCardByID("c1")
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if card.ReviewCount != 1 || card.CorrectCount != 1 || card.Difficulty != 2.65 {
		t.Errorf("Expected the schedule to be stored, but got %+v", card)
	}

	stale := first
	stale.Version = 5
	stale.Difficulty = 1.3
	if err := db.SaveReview(context.Background(), stale); err != nil {
		t.Fatalf("save stale review: %v", err)
	}
	card, _ = db.FindCardByID("c1")
	if card.Difficulty != 2.65 {
		t.Errorf("Expected an older review not to roll the schedule back, but got %.2f", card.Difficulty)
	}

	reviews, err := db.ReviewsForCard("c1")
	if err != nil {
		t.Fatalf("reviews: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("Expected 2 logged reviews, but got %d", len(reviews))
	}
	if reviews[1].ResponseTime != 1200*time.Millisecond || !reviews[1].WasCorrect || reviews[1].Version != 10 {
		t.Errorf("Unexpected latest review %+v", reviews[1])
	}
}

func TestSaveReviewUndoneOutOfOrder(t *testing.T) {
	db := setupTestDB(t)
	original := domain.Card{ID: "c1", Question: "q", Difficulty: 2.5, NextReviewDate: now}
	if err := db.InsertCard(original, 0); err != nil {
		t.Fatalf("insert card: %v", err)
	}

	undone := domain.Review{
		CardID: "c1", WasCorrect: true, Difficulty: 2.65, NextReviewDate: now.Add(24 * time.Hour),
		ReviewCount: 1, CorrectCount: 1, ReviewedAt: now, Version: 100,
	}
	revert := domain.Review{
		CardID: "c1", Difficulty: 2.5, NextReviewDate: now,
		ReviewedAt: now.Add(time.Second), Version: 101, Reverts: 100,
	}
	final := domain.Review{
		CardID: "c1", WasCorrect: false, Difficulty: 2.3, NextReviewDate: now.Add(10 * time.Minute),
		ReviewCount: 1, ReviewedAt: now.Add(2 * time.Second), Version: 102,
	}

	// The undone answer was retried and lands last.
	for _, r := range []domain.Review{revert, final, undone} {
		if err := db.SaveReview(context.Background(), r); err != nil {
			t.Fatalf("save review %d: %v", r.Version, err)
		}
	}

	card, err := db.FindCardByID("c1")
	if err != nil {
		t.Fatalf("find card: %v", err)
	}
	if card.Difficulty != 2.3 || card.CorrectCount != 0 || !card.NextReviewDate.Equal(final.NextReviewDate) {
		t.Errorf("Expected the final answer's schedule, but got %+v", card)
	}

	reviews, err := db.ReviewsForCard("c1")
	if err != nil {
		t.Fatalf("reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Version != 102 || reviews[0].WasCorrect {
		t.Errorf("Expected only the final answer in the log, but got %+v", reviews)
	}
}

func TestSaveReviewRevertRestoresSchedule(t *testing.T) {
	db := setupTestDB(t)
	if err := db.InsertCard(domain.Card{ID: "c1", Question: "q", Difficulty: 2.5, NextReviewDate: now}, 0); err != nil {
		t.Fatalf("insert card: %v", err)
	}
	answer := domain.Review{
		CardID: "c1", WasCorrect: true, Difficulty: 2.65, NextReviewDate: now.Add(24 * time.Hour),
		ReviewCount: 1, CorrectCount: 1, ReviewedAt: now, Version: 100,
	}
	revert := domain.Review{CardID: "c1", Difficulty: 2.5, NextReviewDate: now, ReviewedAt: now, Version: 101, Reverts: 100}
	for _, r := range []domain.Review{answer, revert} {
		if err := db.SaveReview(context.Background(), r); err != nil {
			t.Fatalf("save review: %v", err)
		}
	}

	card, _ := db.FindCardByID("c1")
	if card.Difficulty != 2.5 || card.ReviewCount != 0 || !card.NextReviewDate.Equal(now) {
		t.Errorf("Expected the original schedule back, but got %+v", card)
	}
	reviews, _ := db.ReviewsForCard("c1")
	if len(reviews) != 0 {
		t.Errorf("Expected an empty log, but got %+v", reviews)
	}
}

func TestStarred(t *testing.T) {
	db := setupTestDB(t)
	for _, id := range []string{"b", "a", "b"} {
		if err := db.SetStarred(id, true); err != nil {
			t.Fatalf("star %s: %v", id, err)
		}
	}
	ids, err := db.StarredIDs()
	if err != nil {
		t.Fatalf("starred: %v", err)
	}
	if !slices.Equal(ids, []string{"b", "a"}) {
		t.Errorf("Expected [b a], but got %v", ids)
	}

	if err := db.SetStarred("b", false); err != nil {
		t.Fatalf("unstar: %v", err)
	}
	ids, _ = db.StarredIDs()
	if !slices.Equal(ids, []string{"a"}) {
		t.Errorf("Expected [a], but got %v", ids)
	}
}

func TestSources(t *testing.T) {
	db := setupTestDB(t)
	id, err := db.InsertSource("/notes", SourceLocal)
	if err != nil {
		t.Fatalf("insert source: %v", err)
	}
	if err := db.InsertCard(domain.Card{ID: "s1", Question: "q", NextReviewDate: now}, id); err != nil {
		t.Fatalf("insert card: %v", err)
	}

	src, err := db.FindSourceByPath("/notes")
	if err != nil || src == nil {
		t.Fatalf("find source: %v, %v", src, err)
	}
	if src.Type != SourceLocal || src.LastScanned.Valid {
		t.Errorf("Unexpected source %+v", src)
	}
	if err := db.UpdateSourceLastScanned(id); err != nil {
		t.Fatalf("update last scanned: %v", err)
	}

	cards, err := db.GetCardsBySourceID(id)
	if err != nil || len(cards) != 1 {
		t.Fatalf("Expected one card for the source, but got %d (%v)", len(cards), err)
	}

	if err := db.DeleteSource(id); err != nil {
		t.Fatalf("delete source: %v", err)
	}
	sources, err := db.GetAllSources()
	if err != nil {
		t.Fatalf("all sources: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("Expected no sources, but got %+v", sources)
	}
	if card, _ := db.FindCardByID("s1"); card != nil {
		t.Errorf("Expected the source's cards to be deleted")
	}
}
