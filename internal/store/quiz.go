package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// SaveQuizResult stores a scored quiz with one item per question. An empty
// ID is filled with a new UUID; the stored ID is returned.
func (s *Store) SaveQuizResult(r model.QuizResult) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO quiz_results (id, surface, correct_count, total, percent, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Surface, r.CorrectCount, r.Total, r.Percent, r.SubmittedAt,
	); err != nil {
		return "", fmt.Errorf("insert quiz result: %w", err)
	}

	for _, q := range r.Questions {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return "", fmt.Errorf("encode options: %w", err)
		}
		chosen, ok := r.Answers[q.ID]
		if !ok {
			chosen = -1
		}
		if _, err := tx.Exec(
			`INSERT INTO result_items (result_id, question_id, kind, keyword, prompt, options, correct_index, chosen, correct)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, q.ID, string(q.Kind), q.Keyword, q.Prompt, string(opts), q.CorrectOptionIndex, chosen, chosen == q.CorrectOptionIndex,
		); err != nil {
			return "", fmt.Errorf("insert result item %d: %w", q.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	slog.Info("saved quiz result", "id", r.ID, "surface", r.Surface, "correct", r.CorrectCount, "total", r.Total)
	return r.ID, nil
}

// GetQuizResult loads one result with its questions, answers and items.
// It returns nil and no error if id is unknown.
func (s *Store) GetQuizResult(id string) (*model.QuizResult, error) {
	var r model.QuizResult
	err := s.db.QueryRow(
		`SELECT id, surface, correct_count, total, percent, submitted_at FROM quiz_results WHERE id = ?`, id,
	).Scan(&r.ID, &r.Surface, &r.CorrectCount, &r.Total, &r.Percent, &r.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(&r); err != nil {
		return nil, fmt.Errorf("load items for %s: %w", id, err)
	}
	return &r, nil
}

// ListQuizResults returns result headers, newest first. Items are not loaded.
func (s *Store) ListQuizResults(limit int) ([]model.QuizResult, error) {
	query := `SELECT id, surface, correct_count, total, percent, submitted_at
		FROM quiz_results ORDER BY submitted_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.QuizResult
	for rows.Next() {
		var r model.QuizResult
		if err := rows.Scan(&r.ID, &r.Surface, &r.CorrectCount, &r.Total, &r.Percent, &r.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// QuizResultCount returns the number of stored results.
func (s *Store) QuizResultCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quiz_results`).Scan(&count)
	return count, err
}

func (s *Store) loadItems(r *model.QuizResult) error {
	rows, err := s.db.Query(
		`SELECT question_id, kind, keyword, prompt, options, correct_index, chosen, correct
		 FROM result_items WHERE result_id = ? ORDER BY question_id`, r.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	r.Answers = make(map[int]int)
	for rows.Next() {
		var (
			q    model.Question
			it   model.ResultItem
			opts string
		)
		if err := rows.Scan(&q.ID, &q.Kind, &q.Keyword, &q.Prompt, &opts, &q.CorrectOptionIndex, &it.Chosen, &it.Correct); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return fmt.Errorf("decode options of question %d: %w", q.ID, err)
		}
		it.QuestionID, it.Kind, it.Keyword = q.ID, q.Kind, q.Keyword
		if it.Chosen >= 0 {
			r.Answers[q.ID] = it.Chosen
		}
		r.Questions = append(r.Questions, q)
		r.Items = append(r.Items, it)
	}
	return rows.Err()
}
