package store

import (
	"fmt"
	"time"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// ExportQuizResults builds an export of every stored result, oldest first,
// with questions and per-question items.
func (s *Store) ExportQuizResults() (model.QuizExport, error) {
	headers, err := s.ListQuizResults(0)
	if err != nil {
		return model.QuizExport{}, fmt.Errorf("list quiz results: %w", err)
	}

	results := make([]model.QuizResult, 0, len(headers))
	for i := len(headers) - 1; i >= 0; i-- {
		r := headers[i]
		if err := s.loadItems(&r); err != nil {
			return model.QuizExport{}, fmt.Errorf("load result %s: %w", r.ID, err)
		}
		results = append(results, r)
	}

	return model.QuizExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	}, nil
}
