package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const questionColumns = `id, part, sub_part, audio_path, image_path, text, pack_id, pack_order, response_time, active`

func scanQuestion(scan func(dest ...any) error) (Question, error) {
	var q Question
	err := scan(&q.ID, &q.Part, &q.SubPart, &q.AudioPath, &q.ImagePath,
		&q.Text, &q.PackID, &q.PackOrder, &q.ResponseTime, &q.Active)
	return q, err
}

// AddQuestion validates and inserts a prompt. Part 3 prompts are image-only,
// so any text is dropped.
func (s *Store) AddQuestion(ctx context.Context, q Question) (int64, error) {
	if q.Part == 3 {
		q.Text = ""
	}

	if q.Part == 1 && q.SubPart == 2 && q.ImagePath == "" {
		return 0, errors.New("image is required for Part 1.2 questions")
	}
	if q.Part == 3 && q.ImagePath == "" {
		return 0, errors.New("image is required for Part 3 questions")
	}
	if q.Part == 1 && (q.SubPart == 1 || q.SubPart == 2) {
		if strings.TrimSpace(q.PackID) == "" {
			return 0, errors.New("test pack ID is required for Part 1.1 and Part 1.2 questions")
		}
		if q.PackOrder <= 0 {
			return 0, errors.New("question order is required for Part 1.1 and Part 1.2 questions")
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (part, sub_part, audio_path, image_path, text, pack_id, pack_order, response_time, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		q.Part, q.SubPart, q.AudioPath, q.ImagePath, q.Text, q.PackID, q.PackOrder, q.ResponseTime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) ListQuestions(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE active = 1 ORDER BY part, sub_part, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateQuestion(ctx context.Context, questionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE questions SET active = 0 WHERE id = ?`, questionID)
	return err
}

// RandomQuestions samples active prompts for one exam section.
//
// Part 1 sub-parts come in authored packs: a random non-empty pack is picked
// and returned whole, in pack order. When no pack matches (or for every other
// part) it falls back to plain random sampling with exclusions.
func (s *Store) RandomQuestions(ctx context.Context, part, count int, excludeIDs []int64, subPart *int) ([]Question, error) {
	if part == 1 && subPart != nil && (*subPart == 1 || *subPart == 2) {
		var packID string
		err := s.db.QueryRowContext(ctx,
			`SELECT pack_id FROM questions
			 WHERE part = ? AND sub_part = ? AND active = 1 AND pack_id <> ''
			 GROUP BY pack_id
			 ORDER BY RANDOM()
			 LIMIT 1`, part, *subPart).Scan(&packID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// fall through to random sampling
		case err != nil:
			return nil, err
		default:
			qs, err := s.packQuestions(ctx, part, *subPart, packID)
			if err != nil {
				return nil, err
			}
			if len(qs) > 0 {
				return qs, nil
			}
		}
	}

	clauses := []string{"part = ?", "active = 1"}
	args := []any{part}
	if subPart != nil {
		clauses = append(clauses, "sub_part = ?")
		args = append(args, *subPart)
	}
	if len(excludeIDs) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(excludeIDs)), ",")
		clauses = append(clauses, fmt.Sprintf("id NOT IN (%s)", ph))
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	args = append(args, count)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE `+strings.Join(clauses, " AND ")+`
		 ORDER BY RANDOM() LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) packQuestions(ctx context.Context, part, subPart int, packID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE part = ? AND sub_part = ? AND active = 1 AND pack_id = ?
		 ORDER BY pack_order ASC, id ASC`, part, subPart, packID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
