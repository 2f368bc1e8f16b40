package session

import "errors"

// Precondition and boundary errors. The handler layer maps these to
// user-visible notifications; none of them mutate session state.
var (
	ErrNotStarted       = errors.New("assignment not started")
	ErrAlreadyStarted   = errors.New("assignment already started")
	ErrAtFirstQuestion  = errors.New("already at the first question")
	ErrAtLastQuestion   = errors.New("already at the last question")
	ErrNoQuestions      = errors.New("session has no questions")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrQuestionAnswered = errors.New("question is already marked as answered")
	ErrReplyPending     = errors.New("a tutor reply is already pending for this question")
	ErrSessionReset     = errors.New("session was reset while the request was in flight")
)
