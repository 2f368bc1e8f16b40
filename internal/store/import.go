package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/prep-work/backend/internal/model"
)

// GetImportedFileHash returns the recorded sha256 of a previously imported
// file, or empty string if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT sha256 FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the sha256 of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, sha256) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET sha256 = ?`,
		path, hash, hash,
	)
	return err
}

// ImportAssignments loads assignment JSON files into the database. A file is
// imported once; if its content changes later the import is skipped so
// existing submissions keep referring to the original questions.
func (s *Store) ImportAssignments(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := s.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("assignment file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("assignment file changed since last import, skipping to avoid breaking existing submissions",
				"path", path)
			continue
		}

		var imports []model.AssignmentImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, ai := range imports {
			if err := s.importOne(ai); err != nil {
				return fmt.Errorf("import assignment %q from %s: %w", ai.ModuleName, path, err)
			}
		}

		if err := s.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported assignments", "path", path, "count", len(imports))
	}
	return nil
}

func (s *Store) importOne(ai model.AssignmentImport) error {
	if err := s.UpsertCourse(model.Course{ID: ai.CourseID, Name: ai.CourseName}); err != nil {
		return err
	}
	total := ai.TotalQuestions
	if total <= 0 || total > len(ai.Questions) {
		total = len(ai.Questions)
	}
	assignmentID, err := s.CreateAssignment(model.Assignment{
		CourseID:       ai.CourseID,
		ModuleName:     ai.ModuleName,
		TotalQuestions: total,
	})
	if err != nil {
		return err
	}
	for _, qi := range ai.Questions {
		_, err := s.InsertQuestion(model.Question{
			AssignmentID:    assignmentID,
			Goal:            qi.Goal,
			Text:            qi.Text,
			ReferenceAnswer: qi.ReferenceAnswer,
			Difficulty:      qi.Difficulty,
			Metadata:        qi.Metadata,
		})
		if err != nil {
			return err
		}
	}
	if ai.SystemMessage != "" {
		if err := s.SetSystemMessage(assignmentID, ai.SystemMessage); err != nil {
			return err
		}
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
