package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prep-work/backend/internal/model"
	"github.com/prep-work/backend/internal/tutor"
)

// TutorBackend produces one assistant reply for a question's conversation.
// *tutor.Client satisfies it; tests substitute fakes.
type TutorBackend interface {
	Reply(ctx context.Context, systemPrompt string, turns []model.ChatTurn) (string, error)
}

// PlaceholderContent is the transient "assistant is typing" turn the SPA's
// renderer recognizes. Placeholders are tracked and removed by turn ID; the
// content is only a rendering hint.
const PlaceholderContent = `<span class="loading loading-dots loading-md"></span>`

// seedInstruction is the hidden user turn that prompts the tutor to pose a
// question when it first becomes current.
const seedInstruction = "Please begin by asking me this question."

// replyTimeout bounds one tutor request.
const replyTimeout = 30 * time.Second

// Session owns the mutable state of one assignment attempt: the ordered
// question states, the current position, and the started flag. All mutations
// go through its methods; the mutex is never held across a tutor call.
type Session struct {
	mu    sync.Mutex
	tutor TutorBackend

	assignment    model.Assignment
	systemMessage string
	selected      []model.Question

	started    bool
	current    int
	states     []*model.QuestionState
	generation int
}

// New creates a session over an already-selected question list. The
// assignment's question count is corrected downward when the selection came
// up short of the advertised total.
func New(a model.Assignment, systemMessage string, selected []model.Question, backend TutorBackend) *Session {
	if len(selected) < a.TotalQuestions {
		a.TotalQuestions = len(selected)
	}
	return &Session{
		tutor:         backend,
		assignment:    a,
		systemMessage: systemMessage,
		selected:      selected,
		states:        newStates(selected),
	}
}

func newStates(selected []model.Question) []*model.QuestionState {
	states := make([]*model.QuestionState, len(selected))
	for i, q := range selected {
		states[i] = &model.QuestionState{Question: q}
	}
	return states
}

// Start transitions the session from NotStarted to Started and seeds the
// first question. Valid only when not yet started.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(s.states) == 0 {
		s.mu.Unlock()
		return ErrNoQuestions
	}
	s.started = true
	qs, position, seed := s.markAskedLocked()
	s.mu.Unlock()

	return s.seedIfNeeded(ctx, seed, qs, position)
}

// Reset discards all progress and re-derives fresh question states from the
// original selection: unanswered, unasked, empty conversations, index 0,
// not started. Tutor replies still in flight for the old generation are
// discarded when they arrive. Valid only when started.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	s.states = newStates(s.selected)
	s.current = 0
	s.started = false
	s.generation++
	return nil
}

// Next moves to the following question, seeding it on first visit.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.current >= len(s.states)-1 {
		s.mu.Unlock()
		return ErrAtLastQuestion
	}
	s.current++
	qs, position, seed := s.markAskedLocked()
	s.mu.Unlock()

	return s.seedIfNeeded(ctx, seed, qs, position)
}

// Previous moves to the preceding question.
func (s *Session) Previous(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.current <= 0 {
		s.mu.Unlock()
		return ErrAtFirstQuestion
	}
	s.current--
	qs, position, seed := s.markAskedLocked()
	s.mu.Unlock()

	return s.seedIfNeeded(ctx, seed, qs, position)
}

// SetIndex jumps to question i, clamped to the valid range, seeding the
// target on first visit.
func (s *Session) SetIndex(ctx context.Context, i int) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if len(s.states) == 0 {
		s.mu.Unlock()
		return ErrNoQuestions
	}
	if i < 0 {
		i = 0
	}
	if i > len(s.states)-1 {
		i = len(s.states) - 1
	}
	s.current = i
	qs, position, seed := s.markAskedLocked()
	s.mu.Unlock()

	return s.seedIfNeeded(ctx, seed, qs, position)
}

func (s *Session) seedIfNeeded(ctx context.Context, seed bool, qs *model.QuestionState, position int) error {
	if !seed {
		return nil
	}
	if _, err := s.send(ctx, qs, position, seedInstruction, true); err != nil {
		return fmt.Errorf("seed question %d: %w", position+1, err)
	}
	return nil
}

// markAskedLocked flags the current question as asked if it wasn't yet. It
// returns the question's state and position so the seed exchange binds to
// this question even if the current index moves before the exchange runs.
func (s *Session) markAskedLocked() (*model.QuestionState, int, bool) {
	qs := s.states[s.current]
	if qs.IsAsked {
		return qs, s.current, false
	}
	qs.IsAsked = true
	return qs, s.current, true
}

// MarkCurrentAnswered sets isAnswered on the current question. It never
// unsets; only Reset clears answers. A session with no questions is a no-op.
func (s *Session) MarkCurrentAnswered() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if len(s.states) == 0 {
		return nil
	}
	s.states[s.current].IsAnswered = true
	return nil
}

// AnswerAndAdvance marks the current question answered and moves on. Hitting
// the last-question boundary is silent; the mark still succeeds.
func (s *Session) AnswerAndAdvance(ctx context.Context) error {
	if err := s.MarkCurrentAnswered(); err != nil {
		return err
	}
	err := s.Next(ctx)
	if errors.Is(err, ErrAtLastQuestion) {
		return nil
	}
	return err
}

// SendMessage appends the student's message to the current question's
// conversation and runs the tutor exchange.
func (s *Session) SendMessage(ctx context.Context, content string) ([]model.Turn, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if len(s.states) == 0 {
		s.mu.Unlock()
		return nil, ErrNoQuestions
	}
	qs := s.states[s.current]
	position := s.current
	s.mu.Unlock()
	return s.send(ctx, qs, position, content, false)
}

// send runs one tutor exchange against the question pinned when the exchange
// was initiated: append the user turn, append a pending placeholder, call the
// backend with the projected conversation, then replace the placeholder with
// the reply. The placeholder is removed on success and failure alike, so a
// completed exchange never leaves one behind.
func (s *Session) send(ctx context.Context, qs *model.QuestionState, position int, content string, hidden bool) ([]model.Turn, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if qs.IsAnswered {
		s.mu.Unlock()
		return nil, ErrQuestionAnswered
	}
	if hasPending(qs) {
		s.mu.Unlock()
		return nil, ErrReplyPending
	}

	now := time.Now().UnixMilli()
	if content != "" {
		qs.Conversation = append(qs.Conversation, model.Turn{
			ID:        uuid.NewString(),
			Role:      model.RoleUser,
			Content:   content,
			Timestamp: now,
			Hidden:    hidden,
		})
	}
	placeholderID := uuid.NewString()
	qs.Conversation = append(qs.Conversation, model.Turn{
		ID:        placeholderID,
		Role:      model.RoleAssistant,
		Content:   PlaceholderContent,
		Timestamp: now,
		Pending:   true,
	})

	gen := s.generation
	turns := projectTurns(qs.Conversation)
	prompt, err := tutor.BuildSystemPrompt(s.systemMessage, qs.Question, position+1, len(s.states))
	if err != nil {
		removeTurn(qs, placeholderID)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	reply, callErr := s.tutor.Reply(cctx, prompt, turns)

	s.mu.Lock()
	defer s.mu.Unlock()
	removeTurn(qs, placeholderID)
	if gen != s.generation {
		// The reply targets a discarded generation; qs is orphaned.
		return nil, ErrSessionReset
	}
	if callErr != nil {
		return nil, fmt.Errorf("tutor reply: %w", callErr)
	}
	qs.Conversation = append(qs.Conversation, model.Turn{
		ID:        uuid.NewString(),
		Role:      model.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UnixMilli(),
	})
	return append([]model.Turn(nil), qs.Conversation...), nil
}

// Current returns a copy of the current question's state, or nil for an
// empty session.
func (s *Session) Current() *model.QuestionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return nil
	}
	qs := *s.states[s.current]
	qs.Conversation = append([]model.Turn(nil), qs.Conversation...)
	return &qs
}

// TotalAnswered counts the answered questions.
func (s *Session) TotalAnswered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalAnsweredLocked()
}

func (s *Session) totalAnsweredLocked() int {
	count := 0
	for _, qs := range s.states {
		if qs.IsAnswered {
			count++
		}
	}
	return count
}

// Snapshot is the JSON view of a session handed to the SPA.
type Snapshot struct {
	AssignmentID   int64                 `json:"assignment_id"`
	ModuleName     string                `json:"module_name"`
	Started        bool                  `json:"started"`
	CurrentIndex   int                   `json:"current_index"`
	TotalQuestions int                   `json:"total_questions"`
	TotalAnswered  int                   `json:"total_answered"`
	Questions      []model.QuestionState `json:"questions"`
}

// Snapshot copies the session state for rendering. Reference answers never
// leave the server.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	questions := make([]model.QuestionState, len(s.states))
	for i, qs := range s.states {
		cp := *qs
		cp.Question.ReferenceAnswer = ""
		cp.Conversation = append([]model.Turn(nil), qs.Conversation...)
		questions[i] = cp
	}
	return Snapshot{
		AssignmentID:   s.assignment.ID,
		ModuleName:     s.assignment.ModuleName,
		Started:        s.started,
		CurrentIndex:   s.current,
		TotalQuestions: s.assignment.TotalQuestions,
		TotalAnswered:  s.totalAnsweredLocked(),
		Questions:      questions,
	}
}

func hasPending(qs *model.QuestionState) bool {
	for _, t := range qs.Conversation {
		if t.Pending {
			return true
		}
	}
	return false
}

func removeTurn(qs *model.QuestionState, id string) {
	kept := qs.Conversation[:0]
	for _, t := range qs.Conversation {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	qs.Conversation = kept
}

// projectTurns builds the {role, content} request body: every non-pending
// turn in insertion order, hidden seed turns included.
func projectTurns(conversation []model.Turn) []model.ChatTurn {
	turns := make([]model.ChatTurn, 0, len(conversation))
	for _, t := range conversation {
		if t.Pending {
			continue
		}
		turns = append(turns, model.ChatTurn{Role: t.Role, Content: t.Content})
	}
	return turns
}
