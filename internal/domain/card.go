package domain

import "time"

// Card is a single flashcard. Question, Answer and Context are opaque content;
// the remaining fields carry the card's review schedule.
type Card struct {
	ID       string
	Deck     string
	Question string
	Answer   string
	Context  string

	Difficulty     float64
	ReviewCount    int
	CorrectCount   int
	NextReviewDate time.Time
}

// IsDue reports whether the card should be reviewed at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.NextReviewDate.After(now)
}

// Review records a single response to a card together with the schedule
// computed from it.
//
// Version orders the writes of a card: a review only moves the stored schedule
// forward when its Version is higher than the last one applied. A review with
// Reverts set is the undo of the review with that Version; its schedule is the
// one the card had before.
type Review struct {
	CardID         string
	WasCorrect     bool
	ResponseTime   time.Duration
	Difficulty     float64
	NextReviewDate time.Time
	ReviewCount    int
	CorrectCount   int
	ReviewedAt     time.Time
	Version        int64
	Reverts        int64
}
