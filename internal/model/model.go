package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level (distinct from Role which is chat turn roles).
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleInstructor is an instructor user role.
	UserRoleInstructor UserRole = "instructor"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleInstructor, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user. Students sign in with their email address.
type User struct {
	ID           int64
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Role represents a chat turn role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Difficulty represents question difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Course groups assignments. Students see only the assignments of courses
// they are enrolled in.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CourseStatus pairs a course with the signed-in user's enrollment state.
type CourseStatus struct {
	Course   Course `json:"course"`
	Enrolled bool   `json:"enrolled"`
}

// Assignment represents a named collection of questions a student works through once.
type Assignment struct {
	ID             int64  `json:"id"`
	CourseID       int64  `json:"course_id"`
	ModuleName     string `json:"module_name"`
	TotalQuestions int    `json:"total_questions"`
}

// Question represents one question of an assignment. Questions are immutable
// after import; session progress lives in QuestionState.
type Question struct {
	ID              int64      `json:"id"`
	AssignmentID    int64      `json:"assignment_id"`
	Goal            string     `json:"goal"`
	Text            string     `json:"text"`
	ReferenceAnswer string     `json:"reference_answer"`
	Difficulty      Difficulty `json:"difficulty"`
	Metadata        string     `json:"metadata"`
}

// Turn is one message in a question's conversation. The ID is synthetic and
// unique within a session; pending placeholders are removed by ID, never by
// content matching.
type Turn struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix millis, informational only
	Hidden    bool   `json:"hidden,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

// ChatTurn is the {role, content} projection sent to the AI backend.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// QuestionState wraps one Question with the mutable per-session progress fields.
type QuestionState struct {
	Question     Question `json:"question"`
	IsAnswered   bool     `json:"is_answered"`
	IsAsked      bool     `json:"is_asked"`
	Conversation []Turn   `json:"conversation"`
}

// SubmissionEntry is one question's flattened conversation in a submission.
type SubmissionEntry struct {
	QuestionID   int64  `json:"questionId"`
	Conversation []Turn `json:"conversation"`
}

// QuestionTiming records the elapsed seconds a student spent on one question.
type QuestionTiming struct {
	QuestionID int64   `json:"questionId"`
	TimeTaken  float64 `json:"timeTaken"`
}

// Submission is the persistable record of one assignment attempt. Grade is
// always stored as zero; grading happens outside this system.
type Submission struct {
	ID                    int64             `json:"id"`
	UserID                int64             `json:"user_id"`
	AssignmentID          int64             `json:"assignment_id"`
	Content               []SubmissionEntry `json:"content"`
	Grade                 float64           `json:"grade"`
	OutOf                 int               `json:"out_of"`
	NumQuestionsCompleted int               `json:"num_questions_completed"`
	TimeTakenPerQuestion  []QuestionTiming  `json:"time_taken_per_question"`
	CreatedAt             time.Time         `json:"created_at"`
}

// AssignmentImport is used for loading assignments and their questions from JSON.
type AssignmentImport struct {
	ModuleName     string           `json:"module_name"`
	CourseID       int64            `json:"course_id"`
	CourseName     string           `json:"course_name"`
	TotalQuestions int              `json:"total_questions"`
	SystemMessage  string           `json:"system_message"`
	Questions      []QuestionImport `json:"questions"`
}

// QuestionImport is one question inside an AssignmentImport file.
type QuestionImport struct {
	Goal            string     `json:"goal"`
	Text            string     `json:"text"`
	ReferenceAnswer string     `json:"reference_answer"`
	Difficulty      Difficulty `json:"difficulty"`
	Metadata        string     `json:"metadata"`
}

// AssignmentStatus pairs an assignment with the signed-in student's
// submission state for the dashboard.
type AssignmentStatus struct {
	Assignment Assignment `json:"assignment"`
	Submitted  bool       `json:"submitted"`
}
