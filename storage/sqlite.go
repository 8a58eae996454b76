package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/device-share-storage/interfaces"
	_ "modernc.org/sqlite"
)

// SQLiteKeyValueStore is a durable primary host store backed by SQLite.
// Writes are single statements, so an entry is either fully replaced or untouched.
type SQLiteKeyValueStore struct {
	db    *sql.DB
	quota int64
	log   *slog.Logger
}

var _ interfaces.KeyValueStore = (*SQLiteKeyValueStore)(nil)

// NewSQLiteKeyValueStore opens (or creates) the database at path.
// quota <= 0 means unlimited. Parent directories are created if needed.
func NewSQLiteKeyValueStore(path string, quota int64, log *slog.Logger) (*SQLiteKeyValueStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS items (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Info("SQLite key-value store initialized", slog.String("path", path))
	return &SQLiteKeyValueStore{db: db, quota: quota, log: log}, nil
}

func (s *SQLiteKeyValueStore) SetItem(ctx context.Context, key, value string) error {
	if s.quota > 0 {
		var used sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT SUM(LENGTH(key) + LENGTH(value)) FROM items WHERE key != ?`, key).Scan(&used)
		if err != nil {
			return fmt.Errorf("computing usage: %w", err)
		}
		if used.Int64+int64(len(key)+len(value)) > s.quota {
			return fmt.Errorf("%w: setting %d bytes", interfaces.ErrQuotaExceeded, len(key)+len(value))
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting item: %w", err)
	}
	return nil
}

func (s *SQLiteKeyValueStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting item: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteKeyValueStore) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing item: %w", err)
	}
	return nil
}

func (s *SQLiteKeyValueStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (s *SQLiteKeyValueStore) Close() error {
	return s.db.Close()
}
