package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/flashstudy/internal/difficulty"
	"github.com/conorfennell/flashstudy/internal/session"
	"github.com/conorfennell/flashstudy/internal/storage"
	cardsync "github.com/conorfennell/flashstudy/internal/sync"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 12 * time.Hour

// Options holds the optional dependencies of a Server.
type Options struct {
	ReposDir string
	Logger   *slog.Logger
	Now      func() time.Time
	// SessionTTL evicts sessions no request has touched for this long.
	SessionTTL time.Duration
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	router   *http.ServeMux
	model    *difficulty.Model
	persist  session.ReviewPersistence
	validate *validator.Validate
	reposDir string
	logger   *slog.Logger
	now      func() time.Time
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*studySession
}

// studySession is a live session. lastUsed is guarded by Server.mu.
type studySession struct {
	id       string
	deck     string
	machine  *session.Machine
	lastUsed time.Time
}

// NewServer creates and configures a new server. persist receives every
// accepted response; it may be nil.
func NewServer(db *storage.DB, model *difficulty.Model, persist session.ReviewPersistence, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReposDir == "" {
		opts.ReposDir = "repos"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	s := &Server{
		db:       db,
		router:   http.NewServeMux(),
		model:    model,
		persist:  persist,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		reposDir: opts.ReposDir,
		logger:   opts.Logger,
		now:      opts.Now,
		ttl:      opts.SessionTTL,
		sessions: make(map[string]*studySession),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /decks", s.handleGetDecks())

	s.router.HandleFunc("POST /sessions", s.handleCreateSession())
	s.router.HandleFunc("GET /sessions/{id}", s.withSession(s.handleGetSession))
	s.router.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession())
	s.router.HandleFunc("POST /sessions/{id}/flip", s.withSession(s.handleFlip))
	s.router.HandleFunc("POST /sessions/{id}/respond", s.withSession(s.handleRespond))
	s.router.HandleFunc("POST /sessions/{id}/undo", s.withSession(s.handleUndo))
	s.router.HandleFunc("POST /sessions/{id}/restart", s.withSession(s.handleRestart))
	s.router.HandleFunc("POST /sessions/{id}/star/{card}", s.withSession(s.handleToggleStar))

	// Source management routes
	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeSessionError maps session errors onto status codes.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptySession):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrStaleResponse):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Session operation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// register adds a session and evicts the expired ones.
func (s *Server) register(ss *studySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, old := range s.sessions {
		if s.expired(old, now) {
			delete(s.sessions, id)
			s.logger.Debug("Session expired", "id", id)
		}
	}
	ss.lastUsed = now
	s.sessions[ss.id] = ss
}

// lookup returns a live session and marks it used.
func (s *Server) lookup(id string) (*studySession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(ss, now) {
		delete(s.sessions, id)
		return nil, false
	}
	ss.lastUsed = now
	return ss, true
}

func (s *Server) expired(ss *studySession, now time.Time) bool {
	return now.Sub(ss.lastUsed) > s.ttl
}

// sessionCount returns the number of sessions held.
func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) withSession(h func(http.ResponseWriter, *http.Request, *studySession)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ss, ok := s.lookup(r.PathValue("id"))
		if !ok {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h(w, r, ss)
	}
}

// handleGetDecks lists decks with their card and due counts.
func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.Decks(s.now())
		if err != nil {
			s.logger.Error("Error getting decks", "error", err)
			s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if decks == nil {
			decks = []storage.Deck{}
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"decks": decks})
	}
}

// handleGetSources lists the configured card sources.
func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources()
		if err != nil {
			s.logger.Error("Error getting sources", "error", err)
			s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if sources == nil {
			sources = []storage.Source{}
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
	}
}

type addSourceRequest struct {
	Path string `json:"path" validate:"required"`
}

// handlePostSource adds a new source.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if !s.decode(w, r, &req) {
			return
		}
		id, err := cardsync.AddSource(s.db, req.Path)
		if err != nil {
			s.logger.Error("Error inserting new source", "path", req.Path, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Failed to add source")
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	}
}

// handleDeleteSource deletes a source and its cards.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid source ID")
			return
		}
		if err := s.db.DeleteSource(id); err != nil {
			s.logger.Error("Error deleting source", "id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "Failed to delete source")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and reports what changed.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reports, err := cardsync.Run(r.Context(), s.db, s.reposDir)
		if err != nil {
			s.logger.Error("Sync failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "Sync failed")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
	}
}
