package store

import (
	"database/sql"
	"fmt"

	"github.com/prep-work/backend/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, course_id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (course_id) REFERENCES courses(id)
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL DEFAULT 1,
		module_name TEXT NOT NULL,
		total_questions INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id INTEGER NOT NULL,
		goal TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		reference_answer TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (assignment_id) REFERENCES assignments(id)
	);

	CREATE TABLE IF NOT EXISTS system_messages (
		assignment_id INTEGER PRIMARY KEY,
		body TEXT NOT NULL,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		assignment_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		grade REAL NOT NULL DEFAULT 0,
		out_of INTEGER NOT NULL,
		num_questions_completed INTEGER NOT NULL,
		time_taken_per_question TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (assignment_id) REFERENCES assignments(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateAssignment stores an assignment.
func (s *Store) CreateAssignment(a model.Assignment) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO assignments (course_id, module_name, total_questions) VALUES (?, ?, ?)`,
		a.CourseID, a.ModuleName, a.TotalQuestions,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetAssignment returns an assignment by ID.
func (s *Store) GetAssignment(id int64) (model.Assignment, error) {
	var a model.Assignment
	err := s.db.QueryRow(
		`SELECT id, course_id, module_name, total_questions FROM assignments WHERE id = ?`, id,
	).Scan(&a.ID, &a.CourseID, &a.ModuleName, &a.TotalQuestions)
	return a, err
}

// ListAssignments returns all assignments.
func (s *Store) ListAssignments() ([]model.Assignment, error) {
	rows, err := s.db.Query(`SELECT id, course_id, module_name, total_questions FROM assignments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.CourseID, &a.ModuleName, &a.TotalQuestions); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO questions (assignment_id, goal, text, reference_answer, difficulty, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.AssignmentID, q.Goal, q.Text, q.ReferenceAnswer, q.Difficulty, q.Metadata,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, assignment_id, goal, text, reference_answer, difficulty, metadata FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.AssignmentID, &q.Goal, &q.Text, &q.ReferenceAnswer, &q.Difficulty, &q.Metadata)
	return q, err
}

// ListQuestionsForAssignment returns the full question bank of an assignment.
func (s *Store) ListQuestionsForAssignment(assignmentID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, assignment_id, goal, text, reference_answer, difficulty, metadata
		 FROM questions WHERE assignment_id = ? ORDER BY id`, assignmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.AssignmentID, &q.Goal, &q.Text, &q.ReferenceAnswer, &q.Difficulty, &q.Metadata); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// SetSystemMessage upserts the system message template for an assignment.
func (s *Store) SetSystemMessage(assignmentID int64, body string) error {
	_, err := s.db.Exec(
		`INSERT INTO system_messages (assignment_id, body) VALUES (?, ?)
		 ON CONFLICT(assignment_id) DO UPDATE SET body = ?`,
		assignmentID, body, body,
	)
	return err
}

// GetSystemMessage returns the system message for an assignment.
// Returns empty string and nil error if none is stored.
func (s *Store) GetSystemMessage(assignmentID int64) (string, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM system_messages WHERE assignment_id = ?`, assignmentID).Scan(&body)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return body, err
}
