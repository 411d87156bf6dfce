package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/domain"
)

// Status is the lifecycle stage of a session.
type Status int

const (
	Idle Status = iota
	InProgress
	Completed
)

var statusNames = map[Status]string{
	Idle:       "idle",
	InProgress: "in_progress",
	Completed:  "completed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("session: unknown status %q", text)
}

// Stats are the running counters of one session.
type Stats struct {
	TotalCards      int       `json:"total_cards"`
	CurrentIndex    int       `json:"current_index"`
	KnowCount       int       `json:"know_count"`
	LearningCount   int       `json:"learning_count"`
	StartTime       time.Time `json:"start_time"`
	LearningCardIDs []string  `json:"learning_card_ids"`
}

func (s Stats) clone() Stats {
	s.LearningCardIDs = slices.Clone(s.LearningCardIDs)
	return s
}

// Answered is the number of responses counted so far.
func (s Stats) Answered() int {
	return s.KnowCount + s.LearningCount
}

// HistoryEntry holds what a single response changed, so Undo can put it back.
type HistoryEntry struct {
	CardIndex              int       `json:"card_index"`
	WasCorrect             bool      `json:"was_correct"`
	PreviousDifficulty     float64   `json:"previous_difficulty"`
	PreviousNextReviewDate time.Time `json:"previous_next_review_date"`
	PreviousReviewCount    int       `json:"previous_review_count"`
	PreviousCorrectCount   int       `json:"previous_correct_count"`
	PreviousStats          Stats     `json:"previous_stats"`
	Version                int64     `json:"version"`
}

// Summary is produced when the last card has been answered.
type Summary struct {
	KnowCount       int           `json:"know_count"`
	LearningCount   int           `json:"learning_count"`
	Duration        time.Duration `json:"duration"`
	LearningCardIDs []string      `json:"learning_card_ids"`
}

// DurationMs is the session length in whole milliseconds.
func (s Summary) DurationMs() int64 {
	return s.Duration.Milliseconds()
}

// StartOptions configure Start.
type StartOptions struct {
	StartIndex int
	Starred    StarredSet
}

// State is the complete state of a study session. Every operation is a
// function from one State to the next; none of them modify their input.
//
// Seq is the version of the last review handed to persistence. It only grows,
// undo and restart included.
type State struct {
	Status        Status         `json:"status"`
	Cards         []domain.Card  `json:"cards"`
	Stats         Stats          `json:"stats"`
	History       []HistoryEntry `json:"history"`
	Starred       StarredSet     `json:"starred"`
	ShowingAnswer bool           `json:"showing_answer"`
	CardShownAt   time.Time      `json:"card_shown_at"`
	Summary       *Summary       `json:"summary,omitempty"`
	Seq           int64          `json:"seq"`
}

func (s State) clone() State {
	s.Cards = slices.Clone(s.Cards)
	s.Stats = s.Stats.clone()
	s.History = slices.Clone(s.History)
	for i := range s.History {
		s.History[i].PreviousStats = s.History[i].PreviousStats.clone()
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.LearningCardIDs = slices.Clone(sum.LearningCardIDs)
		s.Summary = &sum
	}
	return s
}

// nextVersion returns a review version above s.Seq. Versions follow the clock
// so that later sessions write above earlier ones.
func (s State) nextVersion(now time.Time) int64 {
	return max(s.Seq+1, now.UnixNano())
}

// Current returns the card at the current index.
func (s State) Current() (domain.Card, bool) {
	if s.Status != InProgress || s.Stats.CurrentIndex < 0 || s.Stats.CurrentIndex >= len(s.Cards) {
		return domain.Card{}, false
	}
	return s.Cards[s.Stats.CurrentIndex], true
}

// start begins a session after prev. Stars toggled on prev are kept when opts
// brings none.
func start(prev State, cards []domain.Card, opts StartOptions, now time.Time) (State, error) {
	if len(cards) == 0 {
		return prev, ErrEmptySession
	}
	idx := min(max(opts.StartIndex, 0), len(cards)-1)
	starred := opts.Starred
	if starred.Len() == 0 {
		starred = prev.Starred
	}
	return State{
		Status: InProgress,
		Cards:  slices.Clone(cards),
		Stats: Stats{
			TotalCards:   len(cards),
			CurrentIndex: idx,
			StartTime:    now,
		},
		Starred:     starred,
		CardShownAt: now,
		Seq:         prev.Seq,
	}, nil
}

func flip(s State) (State, error) {
	if s.Status != InProgress {
		return s, ErrInvalidState
	}
	s.ShowingAnswer = !s.ShowingAnswer
	return s, nil
}

// step is the result of a single accepted response.
type step struct {
	state   State
	review  domain.Review
	summary *Summary
}

func respond(s State, index int, wasCorrect bool, now time.Time, model *difficulty.Model) (step, error) {
	if s.Status != InProgress || s.Stats.CurrentIndex < 0 || s.Stats.CurrentIndex >= s.Stats.TotalCards {
		return step{state: s}, ErrInvalidState
	}
	if index != s.Stats.CurrentIndex {
		return step{state: s}, ErrStaleResponse
	}

	next := s.clone()
	next.Seq = s.nextVersion(now)
	card := next.Cards[index]
	outcome := model.Apply(card, wasCorrect, now)

	entry := HistoryEntry{
		CardIndex:              index,
		WasCorrect:             wasCorrect,
		PreviousDifficulty:     card.Difficulty,
		PreviousNextReviewDate: card.NextReviewDate,
		PreviousReviewCount:    card.ReviewCount,
		PreviousCorrectCount:   card.CorrectCount,
		PreviousStats:          s.Stats.clone(),
		Version:                next.Seq,
	}
	next.History = pushBounded(next.History, entry, next.Stats.TotalCards)

	next.Cards[index] = outcome.ApplyTo(card)
	if wasCorrect {
		next.Stats.KnowCount++
	} else {
		next.Stats.LearningCount++
		if !slices.Contains(next.Stats.LearningCardIDs, card.ID) {
			next.Stats.LearningCardIDs = append(next.Stats.LearningCardIDs, card.ID)
		}
	}

	review := domain.Review{
		CardID:         card.ID,
		WasCorrect:     wasCorrect,
		ResponseTime:   max(now.Sub(s.CardShownAt), 0),
		Difficulty:     outcome.Difficulty,
		NextReviewDate: outcome.NextReviewDate,
		ReviewCount:    outcome.ReviewCount,
		CorrectCount:   outcome.CorrectCount,
		ReviewedAt:     now,
		Version:        next.Seq,
	}

	if index+1 == next.Stats.TotalCards {
		next.Status = Completed
		next.ShowingAnswer = false
		next.Stats.LearningCardIDs = dedupe(next.Stats.LearningCardIDs)
		next.Summary = &Summary{
			KnowCount:       next.Stats.KnowCount,
			LearningCount:   next.Stats.LearningCount,
			Duration:        now.Sub(next.Stats.StartTime),
			LearningCardIDs: slices.Clone(next.Stats.LearningCardIDs),
		}
		sum := *next.Summary
		sum.LearningCardIDs = slices.Clone(sum.LearningCardIDs)
		return step{state: next, review: review, summary: &sum}, nil
	}

	next.Stats.CurrentIndex++
	next.ShowingAnswer = false
	next.CardShownAt = now
	return step{state: next, review: review}, nil
}

// undo rolls back the latest response. With no history left it steps back one
// card without touching stats, which may move before the session's start index.
// A rollback also returns the review that restores the card's stored schedule.
func undo(s State, now time.Time) (State, *domain.Review) {
	if s.Status == Idle {
		return s, nil
	}
	if len(s.History) == 0 {
		if s.Status != InProgress || s.Stats.CurrentIndex == 0 {
			return s, nil
		}
		next := s.clone()
		next.Stats.CurrentIndex--
		next.ShowingAnswer = false
		next.CardShownAt = now
		return next, nil
	}

	next := s.clone()
	entry := next.History[len(next.History)-1]
	next.History = next.History[:len(next.History)-1]

	card := next.Cards[entry.CardIndex]
	card.Difficulty = entry.PreviousDifficulty
	card.NextReviewDate = entry.PreviousNextReviewDate
	card.ReviewCount = entry.PreviousReviewCount
	card.CorrectCount = entry.PreviousCorrectCount
	next.Cards[entry.CardIndex] = card

	next.Stats = entry.PreviousStats.clone()
	next.Stats.CurrentIndex = entry.CardIndex
	next.Status = InProgress
	next.ShowingAnswer = false
	next.CardShownAt = now
	next.Summary = nil
	next.Seq = s.nextVersion(now)

	revert := &domain.Review{
		CardID:         card.ID,
		Difficulty:     card.Difficulty,
		NextReviewDate: card.NextReviewDate,
		ReviewCount:    card.ReviewCount,
		CorrectCount:   card.CorrectCount,
		ReviewedAt:     now,
		Version:        next.Seq,
		Reverts:        entry.Version,
	}
	return next, revert
}

func toggleStar(s State, cardID string) State {
	s.Starred = s.Starred.Toggle(cardID)
	return s
}

func restart(s State, now time.Time) (State, error) {
	if s.Status == Idle {
		return s, ErrInvalidState
	}
	next := s.clone()
	next.Status = InProgress
	next.History = nil
	next.Summary = nil
	next.Stats = Stats{
		TotalCards: len(next.Cards),
		StartTime:  now,
	}
	next.ShowingAnswer = false
	next.CardShownAt = now
	return next, nil
}

// pushBounded appends entry, dropping the oldest entries beyond limit.
func pushBounded(history []HistoryEntry, entry HistoryEntry, limit int) []HistoryEntry {
	history = append(history, entry)
	if limit > 0 && len(history) > limit {
		history = slices.Clone(history[len(history)-limit:])
	}
	return history
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
