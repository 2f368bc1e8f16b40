package session

import (
	"github.com/prep-work/backend/internal/model"
)

// BuildSubmission flattens the session's question states into a persistable
// submission record. The grade is always zero; grading happens elsewhere.
// Requires a started session; the session itself is left untouched, so a
// failed persist can simply be retried.
func (s *Session) BuildSubmission(userID int64) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return model.Submission{}, ErrNotStarted
	}

	content := make([]model.SubmissionEntry, 0, len(s.states))
	timings := make([]model.QuestionTiming, 0, len(s.states))
	completed := 0
	for _, qs := range s.states {
		if qs.IsAnswered {
			completed++
		}
		conv := settledTurns(qs.Conversation)
		content = append(content, model.SubmissionEntry{
			QuestionID:   qs.Question.ID,
			Conversation: conv,
		})
		timings = append(timings, model.QuestionTiming{
			QuestionID: qs.Question.ID,
			TimeTaken:  timeTaken(conv),
		})
	}

	return model.Submission{
		UserID:                userID,
		AssignmentID:          s.assignment.ID,
		Content:               content,
		Grade:                 0,
		OutOf:                 s.assignment.TotalQuestions,
		NumQuestionsCompleted: completed,
		TimeTakenPerQuestion:  timings,
	}, nil
}

// settledTurns copies a conversation without pending placeholders.
func settledTurns(conversation []model.Turn) []model.Turn {
	turns := make([]model.Turn, 0, len(conversation))
	for _, t := range conversation {
		if t.Pending {
			continue
		}
		turns = append(turns, t)
	}
	return turns
}

// timeTaken computes the elapsed seconds between the first and last turn of
// a conversation, 0 when there are fewer than two turns.
func timeTaken(conversation []model.Turn) float64 {
	if len(conversation) < 2 {
		return 0
	}
	first := conversation[0].Timestamp
	last := conversation[len(conversation)-1].Timestamp
	return float64(last-first) / 1000
}
