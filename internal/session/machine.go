package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/domain"
)

// ReviewPersistence durably records responses. Save is called once per
// accepted response and must return without waiting for the write; failures
// are the implementation's to retry and log.
type ReviewPersistence interface {
	Save(review domain.Review)
}

// Result is returned by an accepted response. Summary is set once the session
// has completed.
type Result struct {
	Stats   Stats
	Review  domain.Review
	Summary *Summary
}

// Machine drives one study session. All methods are safe for concurrent use;
// calls are applied one at a time.
type Machine struct {
	mu      sync.Mutex
	state   State
	model   *difficulty.Model
	persist ReviewPersistence
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithPersistence sets the port each response is forwarded to.
func WithPersistence(p ReviewPersistence) Option {
	return func(m *Machine) { m.persist = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the logger used for session events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// NewMachine creates an idle session using model to reschedule cards.
func NewMachine(model *difficulty.Model, opts ...Option) *Machine {
	m := &Machine{
		model:  model,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.model == nil {
		m.model = difficulty.New(difficulty.DefaultParams())
	}
	return m
}

// Start begins a session over cards, which must already be in study order.
// Stars toggled before Start are kept when opts.Starred is empty.
func (m *Machine) Start(cards []domain.Card, opts StartOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := start(m.state, cards, opts, m.now())
	if err != nil {
		return err
	}
	m.state = s
	m.logger.Debug("session started", "cards", len(cards), "start_index", s.Stats.CurrentIndex)
	return nil
}

// Resume replaces the session with a previously taken snapshot.
func (m *Machine) Resume(s State) error {
	if len(s.Cards) == 0 || s.Stats.TotalCards != len(s.Cards) {
		return ErrEmptySession
	}
	if s.Stats.CurrentIndex < 0 || s.Stats.CurrentIndex >= len(s.Cards) {
		return ErrInvalidState
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.clone()
	return nil
}

// Flip toggles whether the current card's answer is showing.
func (m *Machine) Flip() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := flip(m.state)
	if err != nil {
		return err
	}
	m.state = s
	return nil
}

// Respond records an answer to the current card.
func (m *Machine) Respond(wasCorrect bool) (Result, error) {
	m.mu.Lock()
	return m.respondLocked(m.state.Stats.CurrentIndex, wasCorrect)
}

// RespondAt records an answer to the card at index. It fails with
// ErrStaleResponse when index is no longer the current card, which happens when
// the same answer is submitted twice.
func (m *Machine) RespondAt(index int, wasCorrect bool) (Result, error) {
	m.mu.Lock()
	return m.respondLocked(index, wasCorrect)
}

// respondLocked must be called with m.mu held and releases it before the
// review is handed to persistence.
func (m *Machine) respondLocked(index int, wasCorrect bool) (Result, error) {
	st, err := respond(m.state, index, wasCorrect, m.now(), m.model)
	if err != nil {
		m.mu.Unlock()
		return Result{}, err
	}
	m.state = st.state
	res := Result{Stats: st.state.Stats.clone(), Review: st.review, Summary: st.summary}
	m.mu.Unlock()

	m.logger.Debug("card answered",
		"card", st.review.CardID,
		"correct", wasCorrect,
		"difficulty", st.review.Difficulty,
		"completed", st.summary != nil,
	)
	if m.persist != nil {
		m.persist.Save(st.review)
	}
	return res, nil
}

// Undo rolls back the latest response. Without history it steps back one
// card and leaves stats alone; at the first card it does nothing. A rollback
// forwards a reverting review so the stored schedule follows the session.
func (m *Machine) Undo() {
	m.mu.Lock()
	s, revert := undo(m.state, m.now())
	m.state = s
	m.mu.Unlock()

	if revert == nil {
		return
	}
	m.logger.Debug("answer undone", "card", revert.CardID, "version", revert.Reverts)
	if m.persist != nil {
		m.persist.Save(*revert)
	}
}

// ToggleStar flips whether cardID is starred and reports the new membership.
func (m *Machine) ToggleStar(cardID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = toggleStar(m.state, cardID)
	return m.state.Starred.Has(cardID)
}

// Restart begins the same card sequence again with fresh stats.
func (m *Machine) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := restart(m.state, m.now())
	if err != nil {
		return err
	}
	m.state = s
	return nil
}

// Status returns the session's lifecycle stage.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// Stats returns a copy of the running stats.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Stats.clone()
}

// Current returns the card being studied, if any.
func (m *Machine) Current() (domain.Card, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Current()
}

// ShowingAnswer reports whether the current card is flipped.
func (m *Machine) ShowingAnswer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ShowingAnswer
}

// Starred returns the starred set.
func (m *Machine) Starred() StarredSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Starred
}

// Summary returns the summary of a completed session, or nil.
func (m *Machine) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone().Summary
}

// HistoryLen returns the number of responses that can be undone.
func (m *Machine) HistoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.History)
}

// Snapshot returns a deep copy of the whole session state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}
