package store

import (
	"github.com/prep-work/backend/internal/model"
)

// UpsertCourse records a course under its external ID, updating the name on
// re-import.
func (s *Store) UpsertCourse(c model.Course) error {
	_, err := s.db.Exec(
		`INSERT INTO courses (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = ?`,
		c.ID, c.Name, c.Name,
	)
	return err
}

// ListCoursesForUser returns all courses with the user's enrollment flag.
func (s *Store) ListCoursesForUser(userID int64) ([]model.CourseStatus, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.name,
		        EXISTS(SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.user_id = ?)
		 FROM courses c ORDER BY c.id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []model.CourseStatus
	for rows.Next() {
		var cs model.CourseStatus
		if err := rows.Scan(&cs.Course.ID, &cs.Course.Name, &cs.Enrolled); err != nil {
			return nil, err
		}
		courses = append(courses, cs)
	}
	return courses, rows.Err()
}

// ToggleEnrollment enrolls the user in the course, or withdraws them if
// already enrolled. Returns the new enrollment state.
func (s *Store) ToggleEnrollment(userID, courseID int64) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM enrollments WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n > 0 {
		return false, nil
	}
	_, err = s.db.Exec(
		`INSERT INTO enrollments (user_id, course_id) VALUES (?, ?)`,
		userID, courseID,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListAssignmentsForUser returns the assignments of the user's enrolled
// courses. A user with no enrollments sees an empty dashboard.
func (s *Store) ListAssignmentsForUser(userID int64) ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.course_id, a.module_name, a.total_questions
		 FROM assignments a JOIN enrollments e ON e.course_id = a.course_id
		 WHERE e.user_id = ? ORDER BY a.id`, userID,
	)
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
