package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prep-work/backend/internal/model"
)

// InsertSubmission persists one submission record. Content and per-question
// timings are stored as JSON text columns.
func (s *Store) InsertSubmission(sub model.Submission) (int64, error) {
	content, err := json.Marshal(sub.Content)
	if err != nil {
		return 0, fmt.Errorf("marshal content: %w", err)
	}
	timings, err := json.Marshal(sub.TimeTakenPerQuestion)
	if err != nil {
		return 0, fmt.Errorf("marshal timings: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO submissions (user_id, assignment_id, content, grade, out_of, num_questions_completed, time_taken_per_question, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, sub.AssignmentID, string(content), sub.Grade, sub.OutOf,
		sub.NumQuestionsCompleted, string(timings), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSubmissionsForUser returns the user's submissions, newest first.
func (s *Store) ListSubmissionsForUser(userID int64) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, assignment_id, content, grade, out_of, num_questions_completed, time_taken_per_question, created_at
		 FROM submissions WHERE user_id = ? ORDER BY id DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// ListAllSubmissions returns every submission, newest first.
func (s *Store) ListAllSubmissions() ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, assignment_id, content, grade, out_of, num_questions_completed, time_taken_per_question, created_at
		 FROM submissions ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// HasSubmission reports whether the user has already submitted the assignment.
func (s *Store) HasSubmission(userID, assignmentID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM submissions WHERE user_id = ? AND assignment_id = ?`,
		userID, assignmentID,
	).Scan(&count)
	return count > 0, err
}

type submissionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSubmissions(rows submissionRows) ([]model.Submission, error) {
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		var content, timings string
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.AssignmentID, &content, &sub.Grade,
			&sub.OutOf, &sub.NumQuestionsCompleted, &timings, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &sub.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content for submission %d: %w", sub.ID, err)
		}
		if err := json.Unmarshal([]byte(timings), &sub.TimeTakenPerQuestion); err != nil {
			return nil, fmt.Errorf("unmarshal timings for submission %d: %w", sub.ID, err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
