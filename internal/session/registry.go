package session

import (
	"fmt"
	"sync"

	"github.com/prep-work/backend/internal/model"
)

// DataSource is the slice of the store the registry needs to build a session.
// *store.Store satisfies it.
type DataSource interface {
	GetAssignment(id int64) (model.Assignment, error)
	ListQuestionsForAssignment(id int64) ([]model.Question, error)
	GetSystemMessage(id int64) (string, error)
}

type registryKey struct {
	userID       int64
	assignmentID int64
}

// Registry holds one live Session per (user, assignment). Sessions are
// created on demand from store data and kept for the lifetime of the process;
// they are not persisted across restarts.
type Registry struct {
	mu       sync.Mutex
	source   DataSource
	tutor    TutorBackend
	sessions map[registryKey]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(source DataSource, backend TutorBackend) *Registry {
	return &Registry{
		source:   source,
		tutor:    backend,
		sessions: make(map[registryKey]*Session),
	}
}

// Get returns the live session for the user and assignment, if any.
func (r *Registry) Get(userID, assignmentID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[registryKey{userID, assignmentID}]
	return sess, ok
}

// GetOrCreate returns the live session for the user and assignment, building
// one from the question bank on first use: the full pool is fetched and a
// stratified selection drawn from it. A load failure builds no session at
// all; there are no partial sessions.
func (r *Registry) GetOrCreate(userID, assignmentID int64) (*Session, error) {
	key := registryKey{userID, assignmentID}

	r.mu.Lock()
	if sess, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return sess, nil
	}
	r.mu.Unlock()

	a, err := r.source.GetAssignment(assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load assignment %d: %w", assignmentID, err)
	}
	pool, err := r.source.ListQuestionsForAssignment(assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load questions for assignment %d: %w", assignmentID, err)
	}
	systemMessage, err := r.source.GetSystemMessage(assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load system message for assignment %d: %w", assignmentID, err)
	}

	selected := SelectQuestions(pool, a.TotalQuestions, nil)
	sess := New(a, systemMessage, selected, r.tutor)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have built the session meanwhile; keep the first.
	if existing, ok := r.sessions[key]; ok {
		return existing, nil
	}
	r.sessions[key] = sess
	return sess, nil
}
