package api

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"studydeck/internal/models"
	"studydeck/internal/quiz"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("quiz session not found")

// SessionView is the polled snapshot of a running session. Question is nil
// and Result set once the session completes.
type SessionView struct {
	ID         string               `json:"sessionId"`
	Index      int                  `json:"index"`
	Total      int                  `json:"total"`
	Complete   bool                 `json:"complete"`
	Question   *models.QuizQuestion `json:"question,omitempty"`
	LastAnswer *models.QuizAnswer   `json:"lastAnswer,omitempty"`
	Result     *models.QuizResult   `json:"result,omitempty"`
}

// SessionManager owns the in-memory quiz sessions. Sessions themselves are
// single-threaded; the manager serializes all access through its lock.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*quiz.Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*quiz.Session),
	}
}

func (m *SessionManager) Create(questions []models.QuizQuestion) (SessionView, error) {
	session, err := quiz.NewSession(questions)
	if err != nil {
		return SessionView{}, err
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	return view(id, session, nil), nil
}

func (m *SessionManager) Get(id string) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	return view(id, session, nil), nil
}

// Submit grades one answer and advances the session. Completed sessions are
// kept until deleted so the result can be re-fetched.
func (m *SessionManager) Submit(id string, answer models.Answer) (SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	graded, err := session.Submit(answer)
	if err != nil {
		return SessionView{}, err
	}
	return view(id, session, &graded), nil
}

func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func view(id string, session *quiz.Session, graded *models.QuizAnswer) SessionView {
	v := SessionView{
		ID:         id,
		Index:      session.Index(),
		Total:      session.Total(),
		Complete:   session.Complete(),
		LastAnswer: graded,
	}
	if question, ok := session.CurrentQuestion(); ok {
		q := question
		v.Question = &q
	}
	if result, ok := session.Result(); ok {
		v.Result = result
	}
	return v
}
