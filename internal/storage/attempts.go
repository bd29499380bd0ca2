package storage

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"strings"

	"examdesk/pkg/logx"
)

func (s *Store) CreateAttempt(ctx context.Context, studentName string) (int64, error) {
	if strings.TrimSpace(studentName) == "" {
		return 0, errors.New("student name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (student_name) VALUES (?)`, studentName)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) FinishAttempt(ctx context.Context, attemptID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET finished_at = CURRENT_TIMESTAMP WHERE id = ?`, attemptID)
	return err
}

func (s *Store) ListAttempts(ctx context.Context) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_name, started_at, finished_at
		 FROM attempts ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var finished sql.NullString
		if err := rows.Scan(&a.ID, &a.StudentName, &a.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			v := finished.String
			a.FinishedAt = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttempt removes an attempt with its responses, ratings and audio
// files. Audio files already gone from disk are not an error.
func (s *Store) DeleteAttempt(ctx context.Context, attemptID int64) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, audio_path FROM responses WHERE attempt_id = ?`, attemptID)
	if err != nil {
		return err
	}

	type respFile struct {
		id   int64
		path string
	}
	var files []respFile
	for rows.Next() {
		var rf respFile
		if err := rows.Scan(&rf.id, &rf.path); err != nil {
			rows.Close()
			return err
		}
		files = append(files, rf)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, rf := range files {
		if rf.path != "" {
			if err := os.Remove(rf.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM ratings WHERE response_id = ?`, rf.id); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM responses WHERE attempt_id = ?`, attemptID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM attempts WHERE id = ?`, attemptID); err != nil {
		return err
	}
	s.log.Debug("attempt deleted", logx.Int64("attempt_id", attemptID), logx.Int("responses", len(files)))
	return nil
}
