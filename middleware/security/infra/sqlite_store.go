package infra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"userinfo-gateway/middleware/security/domain"
)

const apiKeysSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	key          TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	last_used_at TEXT
)`

// SQLiteKeyStore persiste a tabela em um arquivo SQLite (driver puro Go, sem cgo).
// Save troca o conteúdo inteiro dentro de uma transação.
type SQLiteKeyStore struct {
	db *sql.DB
}

func OpenSQLiteKeyStore(ctx context.Context, path string) (*SQLiteKeyStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// um único writer evita SQLITE_BUSY entre conexões do pool
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, apiKeysSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create api_keys table: %w", err)
	}
	return &SQLiteKeyStore{db: db}, nil
}

func (s *SQLiteKeyStore) Close() error { return s.db.Close() }

func (s *SQLiteKeyStore) Load(ctx context.Context) (map[string]domain.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, name, description, created_at, active, last_used_at FROM api_keys`)
	if err != nil {
		return nil, fmt.Errorf("query api_keys: %w", err)
	}
	defer rows.Close()

	keys := map[string]domain.APIKey{}
	for rows.Next() {
		var (
			rec      domain.APIKey
			created  string
			active   int
			lastUsed sql.NullString
		)
		if err := rows.Scan(&rec.Key, &rec.Name, &rec.Description, &created, &active, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan api_keys: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", MaskKey(rec.Key), err)
		}
		rec.Active = active != 0
		if lastUsed.Valid {
			t, err := time.Parse(time.RFC3339Nano, lastUsed.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_used_at of %s: %w", MaskKey(rec.Key), err)
			}
			rec.LastUsedAt = &t
		}
		keys[rec.Key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api_keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteKeyStore) Save(ctx context.Context, keys map[string]domain.APIKey) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM api_keys`); err != nil {
		return fmt.Errorf("clear api_keys: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO api_keys (key, name, description, created_at, active, last_used_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for k, rec := range keys {
		var lastUsed any
		if rec.LastUsedAt != nil {
			lastUsed = rec.LastUsedAt.UTC().Format(time.RFC3339Nano)
		}
		active := 0
		if rec.Active {
			active = 1
		}
		if _, err = stmt.ExecContext(ctx, k, rec.Name, rec.Description,
			rec.CreatedAt.UTC().Format(time.RFC3339Nano), active, lastUsed); err != nil {
			return fmt.Errorf("insert %s: %w", MaskKey(k), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
