package storage

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
)

func (s *Store) InsertResponse(ctx context.Context, attemptID, questionID int64, audioPath string, duration int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (attempt_id, question_id, audio_path, duration)
		 VALUES (?, ?, ?, ?)`,
		attemptID, questionID, audioPath, duration)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ResponseDeliveryContext loads what the notification pipeline needs for a
// captured response: the attempt's student plus the question's section data.
func (s *Store) ResponseDeliveryContext(ctx context.Context, attemptID, questionID int64) (ResponseContext, error) {
	var rc ResponseContext
	err := s.db.QueryRowContext(ctx,
		`SELECT student_name FROM attempts WHERE id = ?`, attemptID).Scan(&rc.StudentName)
	if errors.Is(err, sql.ErrNoRows) {
		return ResponseContext{}, ErrNotFound
	}
	if err != nil {
		return ResponseContext{}, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT part, sub_part, text, image_path FROM questions WHERE id = ?`, questionID).
		Scan(&rc.Part, &rc.SubPart, &rc.Text, &rc.ImagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return ResponseContext{}, ErrNotFound
	}
	if err != nil {
		return ResponseContext{}, err
	}
	return rc, nil
}

func (s *Store) ResponseAudioPath(ctx context.Context, responseID int64) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT audio_path FROM responses WHERE id = ?`, responseID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return path, err
}

// DeleteResponse removes one response, its rating and its audio file.
// A missing audio file is tolerated.
func (s *Store) DeleteResponse(ctx context.Context, responseID int64) error {
	var path sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT audio_path FROM responses WHERE id = ?`, responseID).Scan(&path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if path.Valid && path.String != "" {
		if err := os.Remove(path.String); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM ratings WHERE response_id = ?`, responseID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM responses WHERE id = ?`, responseID)
	return err
}

func (s *Store) RateResponse(ctx context.Context, r Rating) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ratings (response_id, fluency, lexical, grammar, pronunciation, comment)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ResponseID, r.Fluency, r.Lexical, r.Grammar, r.Pronunciation, r.Comment)
	return err
}

func (s *Store) ListRecordings(ctx context.Context) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT responses.id,
		        responses.attempt_id,
		        attempts.student_name,
		        attempts.started_at,
		        responses.question_id,
		        questions.part,
		        questions.sub_part,
		        questions.text,
		        responses.recorded_at,
		        responses.duration
		 FROM responses
		 JOIN attempts ON responses.attempt_id = attempts.id
		 JOIN questions ON responses.question_id = questions.id
		 ORDER BY attempts.started_at DESC, responses.recorded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var r Recording
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.StudentName, &r.AttemptStartedAt,
			&r.QuestionID, &r.Part, &r.SubPart, &r.QuestionText, &r.RecordedAt, &r.Duration); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
