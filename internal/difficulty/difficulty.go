package difficulty

import (
	"math"
	"time"

	"github.com/conorfennell/flashstudy/internal/domain"
)

const (
	// Min is the floor below which a card counts as very hard.
	Min = 1.3
	// Max is the ceiling for a fully learned card.
	Max = 5.0
	// Default is used for new cards and for unreadable stored values.
	Default = 2.5

	// legacyThreshold separates float difficulties from the old 0–500 integer encoding.
	legacyThreshold = 10
)

// Params holds the tunable steps of the difficulty model.
type Params struct {
	CorrectStep    float64       // added on a correct response
	IncorrectStep  float64       // subtracted on an incorrect response
	RelearnDelay   time.Duration // delay before a missed card is due again
	FirstInterval  time.Duration // interval after the first correct response
	SecondInterval time.Duration // interval after the second correct response
	MaxInterval    time.Duration // upper bound for any interval
}

// DefaultParams provides the defaults used when nothing is configured.
func DefaultParams() Params {
	return Params{
		CorrectStep:    0.15,
		IncorrectStep:  0.2,
		RelearnDelay:   10 * time.Minute,
		FirstInterval:  24 * time.Hour,
		SecondInterval: 6 * 24 * time.Hour,
		MaxInterval:    365 * 24 * time.Hour,
	}
}

// Model maps a card and a response to the card's next schedule.
type Model struct {
	params Params
}

// New creates a Model. Zero or negative fields in p fall back to DefaultParams.
func New(p Params) *Model {
	d := DefaultParams()
	if p.CorrectStep <= 0 {
		p.CorrectStep = d.CorrectStep
	}
	if p.IncorrectStep <= 0 {
		p.IncorrectStep = d.IncorrectStep
	}
	if p.RelearnDelay <= 0 {
		p.RelearnDelay = d.RelearnDelay
	}
	if p.FirstInterval <= 0 {
		p.FirstInterval = d.FirstInterval
	}
	if p.SecondInterval <= 0 {
		p.SecondInterval = d.SecondInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	return &Model{params: p}
}

// Params returns the parameters the model runs with.
func (m *Model) Params() Params {
	return m.params
}

// Normalize turns a stored difficulty into a usable one. Values above 10 are the
// legacy integer encoding and are divided by 100; zero and NaN mean unset and
// become Default. The result is always within [Min, Max], so negative values
// clamp to Min.
func Normalize(raw float64) float64 {
	if math.IsNaN(raw) || raw == 0 {
		return Default
	}
	if raw > legacyThreshold {
		raw /= 100
	}
	return clamp(raw)
}

func clamp(d float64) float64 {
	return math.Max(Min, math.Min(Max, d))
}

// Outcome is the schedule a card moves to after a response.
type Outcome struct {
	Difficulty     float64
	NextReviewDate time.Time
	ReviewCount    int
	CorrectCount   int
}

// ApplyTo returns a copy of card carrying the outcome's schedule.
func (o Outcome) ApplyTo(card domain.Card) domain.Card {
	card.Difficulty = o.Difficulty
	card.NextReviewDate = o.NextReviewDate
	card.ReviewCount = o.ReviewCount
	card.CorrectCount = o.CorrectCount
	return card
}

// Apply computes the schedule that follows a response to card at now. It reads
// no clock and holds no state, so identical inputs give identical outcomes.
func (m *Model) Apply(card domain.Card, wasCorrect bool, now time.Time) Outcome {
	d := Normalize(card.Difficulty)
	reviews := max(card.ReviewCount, 0) + 1
	correct := max(card.CorrectCount, 0)

	if !wasCorrect {
		return Outcome{
			Difficulty:     clamp(d - m.params.IncorrectStep),
			NextReviewDate: now.Add(m.params.RelearnDelay),
			ReviewCount:    reviews,
			CorrectCount:   correct,
		}
	}

	correct++
	d = clamp(d + m.params.CorrectStep)
	return Outcome{
		Difficulty:     d,
		NextReviewDate: now.Add(m.interval(correct, d)),
		ReviewCount:    reviews,
		CorrectCount:   correct,
	}
}

// interval grows with the number of correct answers: the two fixed first steps,
// then the second step scaled by difficulty for every further success.
func (m *Model) interval(correct int, d float64) time.Duration {
	switch {
	case correct <= 1:
		return min(m.params.FirstInterval, m.params.MaxInterval)
	case correct == 2:
		return min(m.params.SecondInterval, m.params.MaxInterval)
	}
	scaled := float64(m.params.SecondInterval) * math.Pow(d, float64(correct-2))
	if scaled >= float64(m.params.MaxInterval) {
		return m.params.MaxInterval
	}
	return time.Duration(scaled).Round(time.Hour)
}
