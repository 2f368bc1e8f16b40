package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prep-work/backend/internal/model"
)

// fakeTutor records every Reply call and answers with a canned reply. If
// block is set, Reply signals started and then waits until block is closed.
type fakeTutor struct {
	mu      sync.Mutex
	prompts []string
	calls   [][]model.ChatTurn
	reply   string
	err     error

	started chan struct{}
	block   chan struct{}
}

func (f *fakeTutor) Reply(ctx context.Context, systemPrompt string, turns []model.ChatTurn) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, systemPrompt)
	f.calls = append(f.calls, append([]model.ChatTurn(nil), turns...))
	started := f.started
	block := f.block
	reply := f.reply
	err := f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if reply == "" {
		reply = "tutor reply"
	}
	return reply, err
}

func (f *fakeTutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestSession(t *testing.T, n int, backend TutorBackend) *Session {
	t.Helper()
	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			ID:              int64(i + 1),
			AssignmentID:    1,
			Goal:            "goal",
			Text:            "text",
			ReferenceAnswer: "secret",
			Difficulty:      model.DifficultyEasy,
		}
	}
	a := model.Assignment{ID: 1, ModuleName: "Test Module", TotalQuestions: n}
	return New(a, "be helpful", questions, backend)
}

func mustStart(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestStartSeedsFirstQuestion(t *testing.T) {
	ft := &fakeTutor{reply: "What is 2+2?"}
	s := newTestSession(t, 3, ft)

	mustStart(t, s)

	cur := s.Current()
	if !cur.IsAsked {
		t.Error("first question not marked as asked")
	}
	if len(cur.Conversation) != 2 {
		t.Fatalf("conversation has %d turns, want 2 (seed + reply)", len(cur.Conversation))
	}
	seed := cur.Conversation[0]
	if seed.Role != model.RoleUser || !seed.Hidden {
		t.Errorf("first turn = role %s hidden %v, want hidden user turn", seed.Role, seed.Hidden)
	}
	reply := cur.Conversation[1]
	if reply.Role != model.RoleAssistant || reply.Content != "What is 2+2?" {
		t.Errorf("second turn = %s %q, want assistant reply", reply.Role, reply.Content)
	}
	for _, turn := range cur.Conversation {
		if turn.Pending {
			t.Error("pending placeholder left behind after completed exchange")
		}
	}
	// The backend sees the hidden seed turn.
	if ft.callCount() != 1 {
		t.Fatalf("backend called %d times, want 1", ft.callCount())
	}
	if len(ft.calls[0]) != 1 || ft.calls[0][0].Role != model.RoleUser {
		t.Errorf("backend received %v, want the single seed turn", ft.calls[0])
	}
}

func TestStartTwice(t *testing.T) {
	s := newTestSession(t, 2, &fakeTutor{})
	mustStart(t, s)

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartNoQuestions(t *testing.T) {
	s := newTestSession(t, 0, &fakeTutor{})

	if err := s.Start(context.Background()); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("Start = %v, want ErrNoQuestions", err)
	}
}

func TestOperationsRequireStart(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, 3, &fakeTutor{})

	if err := s.Next(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Next = %v, want ErrNotStarted", err)
	}
	if err := s.Previous(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Previous = %v, want ErrNotStarted", err)
	}
	if err := s.SetIndex(ctx, 1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SetIndex = %v, want ErrNotStarted", err)
	}
	if err := s.MarkCurrentAnswered(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("MarkCurrentAnswered = %v, want ErrNotStarted", err)
	}
	if _, err := s.SendMessage(ctx, "hello"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SendMessage = %v, want ErrNotStarted", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Reset = %v, want ErrNotStarted", err)
	}
	if _, err := s.BuildSubmission(1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("BuildSubmission = %v, want ErrNotStarted", err)
	}
}

func TestNavigationBoundaries(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, 3, &fakeTutor{})
	mustStart(t, s)

	if err := s.Previous(ctx); !errors.Is(err, ErrAtFirstQuestion) {
		t.Errorf("Previous at index 0 = %v, want ErrAtFirstQuestion", err)
	}

	// Walk forward to the end, then past it.
	for i := 0; i < 2; i++ {
		if err := s.Next(ctx); err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
	}
	if err := s.Next(ctx); !errors.Is(err, ErrAtLastQuestion) {
		t.Errorf("Next at last index = %v, want ErrAtLastQuestion", err)
	}

	// Walk all the way back.
	for i := 0; i < 2; i++ {
		if err := s.Previous(ctx); err != nil {
			t.Fatalf("Previous %d: %v", i, err)
		}
	}
	if got := s.Snapshot().CurrentIndex; got != 0 {
		t.Errorf("index after walking back = %d, want 0", got)
	}
}

func TestSetIndexClamps(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, 3, &fakeTutor{})
	mustStart(t, s)

	if err := s.SetIndex(ctx, 99); err != nil {
		t.Fatalf("SetIndex(99): %v", err)
	}
	if got := s.Snapshot().CurrentIndex; got != 2 {
		t.Errorf("index after SetIndex(99) = %d, want 2", got)
	}

	if err := s.SetIndex(ctx, -5); err != nil {
		t.Fatalf("SetIndex(-5): %v", err)
	}
	if got := s.Snapshot().CurrentIndex; got != 0 {
		t.Errorf("index after SetIndex(-5) = %d, want 0", got)
	}
}

func TestSeedOncePerQuestion(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTutor{}
	s := newTestSession(t, 3, ft)
	mustStart(t, s)

	// Visit question 2, come back, visit again. Each question seeds once.
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := s.Previous(ctx); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next again: %v", err)
	}

	// One seed for question 1, one for question 2.
	if got := ft.callCount(); got != 2 {
		t.Errorf("backend called %d times, want 2", got)
	}
	if got := len(s.Current().Conversation); got != 2 {
		t.Errorf("revisited question has %d turns, want 2", got)
	}
}

func TestSendMessageAppendsExchange(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTutor{reply: "good thinking"}
	s := newTestSession(t, 2, ft)
	mustStart(t, s)

	turns, err := s.SendMessage(ctx, "is it 4?")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	// seed, seed reply, user message, assistant reply
	if len(turns) != 4 {
		t.Fatalf("conversation has %d turns, want 4", len(turns))
	}
	user := turns[2]
	if user.Role != model.RoleUser || user.Content != "is it 4?" || user.Hidden {
		t.Errorf("user turn = %+v, want visible user message", user)
	}
	if turns[3].Role != model.RoleAssistant || turns[3].Content != "good thinking" {
		t.Errorf("assistant turn = %+v", turns[3])
	}
	for _, turn := range turns {
		if turn.Pending {
			t.Error("pending placeholder survived a completed exchange")
		}
		if turn.ID == "" {
			t.Error("turn without an ID")
		}
	}
}

func TestSendMessageEmpty(t *testing.T) {
	s := newTestSession(t, 2, &fakeTutor{})
	mustStart(t, s)

	if _, err := s.SendMessage(context.Background(), ""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("SendMessage(\"\") = %v, want ErrEmptyMessage", err)
	}
}

func TestSendMessageBackendFailure(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTutor{}
	s := newTestSession(t, 2, ft)
	mustStart(t, s)

	ft.mu.Lock()
	ft.err = errors.New("connection refused")
	ft.mu.Unlock()

	if _, err := s.SendMessage(ctx, "hello?"); err == nil {
		t.Fatal("SendMessage succeeded despite backend failure")
	}

	// The user turn stays; the placeholder is gone and the question is usable.
	cur := s.Current()
	last := cur.Conversation[len(cur.Conversation)-1]
	if last.Role != model.RoleUser || last.Content != "hello?" {
		t.Errorf("last turn = %+v, want the student's message", last)
	}
	for _, turn := range cur.Conversation {
		if turn.Pending {
			t.Error("placeholder left behind after failed exchange")
		}
	}

	ft.mu.Lock()
	ft.err = nil
	ft.mu.Unlock()
	if _, err := s.SendMessage(ctx, "retry"); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestSendMessageOnAnsweredQuestion(t *testing.T) {
	s := newTestSession(t, 2, &fakeTutor{})
	mustStart(t, s)

	if err := s.MarkCurrentAnswered(); err != nil {
		t.Fatalf("MarkCurrentAnswered: %v", err)
	}
	if _, err := s.SendMessage(context.Background(), "one more thing"); !errors.Is(err, ErrQuestionAnswered) {
		t.Errorf("SendMessage on answered question = %v, want ErrQuestionAnswered", err)
	}
}

func TestSendMessageWhileReplyPending(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTutor{}
	s := newTestSession(t, 2, ft)
	mustStart(t, s)

	ft.mu.Lock()
	ft.started = make(chan struct{}, 1)
	ft.block = make(chan struct{})
	ft.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(ctx, "first")
		done <- err
	}()
	<-ft.started

	if _, err := s.SendMessage(ctx, "second"); !errors.Is(err, ErrReplyPending) {
		t.Errorf("concurrent SendMessage = %v, want ErrReplyPending", err)
	}

	close(ft.block)
	if err := <-done; err != nil {
		t.Errorf("first SendMessage: %v", err)
	}
}

func TestResetDiscardsProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, 3, &fakeTutor{})
	mustStart(t, s)

	if _, err := s.SendMessage(ctx, "an answer"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := s.AnswerAndAdvance(ctx); err != nil {
		t.Fatalf("AnswerAndAdvance: %v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	snap := s.Snapshot()
	if snap.Started {
		t.Error("still started after Reset")
	}
	if snap.CurrentIndex != 0 {
		t.Errorf("index = %d after Reset, want 0", snap.CurrentIndex)
	}
	if snap.TotalAnswered != 0 {
		t.Errorf("answered = %d after Reset, want 0", snap.TotalAnswered)
	}
	for i, qs := range snap.Questions {
		if qs.IsAsked || qs.IsAnswered || len(qs.Conversation) != 0 {
			t.Errorf("question %d not pristine after Reset: %+v", i, qs)
		}
	}

	// The same selection restarts cleanly.
	mustStart(t, s)
	if got := len(s.Snapshot().Questions); got != 3 {
		t.Errorf("question count after restart = %d, want 3", got)
	}
}

func TestResetDiscardsInFlightReply(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTutor{}
	s := newTestSession(t, 2, ft)
	mustStart(t, s)

	ft.mu.Lock()
	ft.started = make(chan struct{}, 1)
	ft.block = make(chan struct{})
	ft.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(ctx, "slow question")
		done <- err
	}()
	<-ft.started

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	close(ft.block)

	if err := <-done; !errors.Is(err, ErrSessionReset) {
		t.Errorf("in-flight SendMessage = %v, want ErrSessionReset", err)
	}

	// The stale reply must not leak into the fresh states.
	for i, qs := range s.Snapshot().Questions {
		if len(qs.Conversation) != 0 {
			t.Errorf("question %d has %d turns after Reset, want 0", i, len(qs.Conversation))
		}
	}
}

func TestAnswerAndAdvance(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, 2, &fakeTutor{})
	mustStart(t, s)

	if err := s.AnswerAndAdvance(ctx); err != nil {
		t.Fatalf("AnswerAndAdvance: %v", err)
	}
	snap := s.Snapshot()
	if !snap.Questions[0].IsAnswered {
		t.Error("question 1 not marked answered")
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("index = %d, want 1", snap.CurrentIndex)
	}
	if !snap.Questions[1].IsAsked {
		t.Error("question 2 not seeded after advance")
	}

	// On the last question the boundary is swallowed; the mark still lands.
	if err := s.AnswerAndAdvance(ctx); err != nil {
		t.Fatalf("AnswerAndAdvance at last question: %v", err)
	}
	snap = s.Snapshot()
	if !snap.Questions[1].IsAnswered {
		t.Error("last question not marked answered")
	}
	if snap.CurrentIndex != 1 {
		t.Errorf("index moved past the end: %d", snap.CurrentIndex)
	}
	if snap.TotalAnswered != 2 {
		t.Errorf("TotalAnswered = %d, want 2", snap.TotalAnswered)
	}
}

func TestSnapshotHidesReferenceAnswers(t *testing.T) {
	s := newTestSession(t, 3, &fakeTutor{})
	mustStart(t, s)

	for i, qs := range s.Snapshot().Questions {
		if qs.Question.ReferenceAnswer != "" {
			t.Errorf("question %d exposes its reference answer", i)
		}
	}
	// The session itself still has them for prompt building.
	if s.states[0].Question.ReferenceAnswer == "" {
		t.Error("snapshot blanked the underlying state")
	}
}

func TestNewCorrectsShortSelection(t *testing.T) {
	questions := []model.Question{
		{ID: 1, Difficulty: model.DifficultyEasy},
		{ID: 2, Difficulty: model.DifficultyMedium},
	}
	a := model.Assignment{ID: 1, TotalQuestions: 10}
	s := New(a, "", questions, &fakeTutor{})

	if got := s.Snapshot().TotalQuestions; got != 2 {
		t.Errorf("TotalQuestions = %d, want 2 (corrected to selection size)", got)
	}
}

func TestSendTargetsPinnedQuestion(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTutor{}
	s := newTestSession(t, 3, ft)
	mustStart(t, s)

	// Pin question 1's state, then navigate away before the exchange runs.
	// The exchange must land on the pinned question, not the new current one.
	s.mu.Lock()
	qs := s.states[0]
	s.mu.Unlock()
	if err := s.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if _, err := s.send(ctx, qs, 0, "follow-up", false); err != nil {
		t.Fatalf("send: %v", err)
	}

	snap := s.Snapshot()
	first := snap.Questions[0].Conversation
	if len(first) != 4 || first[2].Content != "follow-up" {
		t.Errorf("question 1 conversation = %+v, want the follow-up exchange", first)
	}
	if got := len(snap.Questions[1].Conversation); got != 2 {
		t.Errorf("question 2 has %d turns, want only its seed exchange", got)
	}

	ft.mu.Lock()
	prompt := ft.prompts[len(ft.prompts)-1]
	ft.mu.Unlock()
	if !strings.Contains(prompt, "question 1 of 3") {
		t.Errorf("prompt built for the wrong position:\n%s", prompt)
	}
}

func TestTurnTimestampsAreMillis(t *testing.T) {
	s := newTestSession(t, 1, &fakeTutor{})
	before := time.Now().UnixMilli()
	mustStart(t, s)
	after := time.Now().UnixMilli()

	for _, turn := range s.Current().Conversation {
		if turn.Timestamp < before || turn.Timestamp > after {
			t.Errorf("timestamp %d outside [%d, %d]", turn.Timestamp, before, after)
		}
	}
}
