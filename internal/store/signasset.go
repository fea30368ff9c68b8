package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tamkeen-edu/tamkeen/internal/model"
)

// ReplaceSignAssets swaps the whole word table in one transaction.
func (s *Store) ReplaceSignAssets(assets []model.SignAsset) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sign_assets`); err != nil {
		return fmt.Errorf("clear sign assets: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO sign_assets (word, ref) VALUES (?, ?)
		ON CONFLICT(word) DO UPDATE SET ref = excluded.ref`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, a := range assets {
		if _, err := stmt.Exec(a.Word, a.Ref); err != nil {
			return fmt.Errorf("insert sign asset %q: %w", a.Word, err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		signAssetsUpdatedKey, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("stamp sign assets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.Info("replaced sign assets", "count", len(assets))
	return nil
}

// ListSignAssets returns the word table ordered by word.
func (s *Store) ListSignAssets() ([]model.SignAsset, error) {
	rows, err := s.db.Query(`SELECT word, ref FROM sign_assets ORDER BY word`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assets []model.SignAsset
	for rows.Next() {
		var a model.SignAsset
		if err := rows.Scan(&a.Word, &a.Ref); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// SignAssetMap returns the word table as a map, ready for signvideo.Table.
func (s *Store) SignAssetMap() (map[string]string, error) {
	assets, err := s.ListSignAssets()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(assets))
	for _, a := range assets {
		m[a.Word] = a.Ref
	}
	return m, nil
}

// GetImportedFileHash returns the hash recorded for path, or "" if the
// file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records that path was imported with content hash.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		path, hash, time.Now(),
	)
	return err
}
