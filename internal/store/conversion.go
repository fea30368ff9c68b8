package store

import (
	"context"
	"fmt"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// LogConversion appends one conversion attempt to the journal.
func (s *Store) LogConversion(ctx context.Context, rec model.ConversionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (surface, token, profile, input_len, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Surface, int64(rec.Token), string(rec.Profile), rec.InputLen, rec.Outcome, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

// ListConversions returns the most recent conversions, newest first.
// A non-positive limit returns all of them.
func (s *Store) ListConversions(limit int) ([]model.ConversionRecord, error) {
	query := `SELECT id, surface, token, profile, input_len, outcome, created_at
		FROM conversions ORDER BY id DESC`
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
	var recs []model.ConversionRecord
	for rows.Next() {
		var (
			r     model.ConversionRecord
			token int64
		)
		if err := rows.Scan(&r.ID, &r.Surface, &token, &r.Profile, &r.InputLen, &r.Outcome, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Token = uint64(token)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// ConversionStats counts journal rows by profile and outcome.
func (s *Store) ConversionStats() (map[model.Profile]map[string]int, error) {
	rows, err := s.db.Query(`SELECT profile, outcome, COUNT(*) FROM conversions GROUP BY profile, outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := make(map[model.Profile]map[string]int)
	for rows.Next() {
		var (
			p model.Profile
			o string
			n int
		)
		if err := rows.Scan(&p, &o, &n); err != nil {
			return nil, err
		}
		if stats[p] == nil {
			stats[p] = make(map[string]int)
		}
		stats[p][o] = n
	}
	return stats, rows.Err()
}
