package web

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/conorfennell/flashstudy/internal/scheduler"
	"github.com/conorfennell/flashstudy/internal/session"
)

type createSessionRequest struct {
	Deck          string   `json:"deck"`
	Shuffle       bool     `json:"shuffle"`
	RestrictToIDs []string `json:"restrict_to_ids" validate:"omitempty,dive,required"`
	OnlyStarred   bool     `json:"only_starred"`
	StartIndex    int      `json:"start_index" validate:"gte=0"`
}

type respondRequest struct {
	Index   *int  `json:"index" validate:"required,gte=0"`
	Correct *bool `json:"correct" validate:"required"`
}

type cardView struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Context  string `json:"context,omitempty"`
	Starred  bool   `json:"starred"`
}

type summaryView struct {
	KnowCount       int      `json:"know_count"`
	LearningCount   int      `json:"learning_count"`
	DurationMs      int64    `json:"duration_ms"`
	LearningCardIDs []string `json:"learning_card_ids"`
}

type sessionView struct {
	ID            string         `json:"id"`
	Deck          string         `json:"deck"`
	Status        session.Status `json:"status"`
	Stats         session.Stats  `json:"stats"`
	ShowingAnswer bool           `json:"showing_answer"`
	Card          *cardView      `json:"card,omitempty"`
	Starred       []string       `json:"starred"`
	Summary       *summaryView   `json:"summary,omitempty"`
}

// view renders a session from a single snapshot.
func (s *Server) view(ss *studySession) sessionView {
	snap := ss.machine.Snapshot()
	v := sessionView{
		ID:            ss.id,
		Deck:          ss.deck,
		Status:        snap.Status,
		Stats:         snap.Stats,
		ShowingAnswer: snap.ShowingAnswer,
		Starred:       snap.Starred.IDs(),
	}
	if v.Starred == nil {
		v.Starred = []string{}
	}
	if card, ok := snap.Current(); ok {
		cv := &cardView{
			Index:    snap.Stats.CurrentIndex,
			ID:       card.ID,
			Question: card.Question,
			Starred:  snap.Starred.Has(card.ID),
		}
		if snap.ShowingAnswer {
			cv.Answer = card.Answer
			cv.Context = card.Context
		}
		v.Card = cv
	}
	if sum := snap.Summary; sum != nil {
		v.Summary = &summaryView{
			KnowCount:       sum.KnowCount,
			LearningCount:   sum.LearningCount,
			DurationMs:      sum.DurationMs(),
			LearningCardIDs: sum.LearningCardIDs,
		}
	}
	return v
}

// handleCreateSession orders a deck and starts a session over it.
func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if !s.decode(w, r, &req) {
			return
		}

		cards, err := s.db.CardsByDeck(req.Deck)
		if err != nil {
			s.logger.Error("Error loading cards", "deck", req.Deck, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		starredIDs, err := s.db.StarredIDs()
		if err != nil {
			s.logger.Error("Error loading starred cards", "error", err)
			s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		opts := scheduler.Options{Shuffle: req.Shuffle, StartIndex: req.StartIndex}
		switch {
		case req.OnlyStarred:
			opts.RestrictToIDs = scheduler.IDSet(starredIDs...)
		case len(req.RestrictToIDs) > 0:
			opts.RestrictToIDs = scheduler.IDSet(req.RestrictToIDs...)
		}
		plan := scheduler.Order(cards, s.now(), opts)

		m := session.NewMachine(s.model,
			session.WithPersistence(s.persist),
			session.WithClock(s.now),
			session.WithLogger(s.logger),
		)
		if err := m.Start(plan.Cards, session.StartOptions{
			StartIndex: plan.StartIndex,
			Starred:    session.NewStarredSet(starredIDs...),
		}); err != nil {
			s.writeSessionError(w, err)
			return
		}

		ss := &studySession{id: uuid.NewString(), deck: req.Deck, machine: m}
		s.register(ss)

		s.logger.Info("Session started", "id", ss.id, "deck", req.Deck, "cards", len(plan.Cards))
		s.writeJSON(w, http.StatusCreated, s.view(ss))
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, ss *studySession) {
	s.writeJSON(w, http.StatusOK, s.view(ss))
}

// handleDeleteSession ends a session early.
func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		s.mu.Lock()
		_, ok := s.sessions[id]
		delete(s.sessions, id)
		s.mu.Unlock()
		if !ok {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request, ss *studySession) {
	if err := ss.machine.Flip(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(ss))
}

// handleRespond answers the card at the submitted index. Submitting the same
// index twice is rejected with 409 instead of answering the next card.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request, ss *studySession) {
	var req respondRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := ss.machine.RespondAt(*req.Index, *req.Correct)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if res.Summary != nil {
		s.logger.Info("Session completed",
			"id", ss.id,
			"know", res.Summary.KnowCount,
			"learning", res.Summary.LearningCount,
			"duration_ms", res.Summary.DurationMs(),
		)
	}
	s.writeJSON(w, http.StatusOK, s.view(ss))
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request, ss *studySession) {
	ss.machine.Undo()
	s.writeJSON(w, http.StatusOK, s.view(ss))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request, ss *studySession) {
	if err := ss.machine.Restart(); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(ss))
}

// handleToggleStar flips a card's star in the session and stores it.
func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request, ss *studySession) {
	cardID := r.PathValue("card")
	starred := ss.machine.ToggleStar(cardID)
	if err := s.db.SetStarred(cardID, starred); err != nil {
		s.logger.Warn("Failed to store star", "card", cardID, "error", err)
	}
	s.writeJSON(w, http.StatusOK, s.view(ss))
}
