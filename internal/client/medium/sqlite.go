package medium

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/migrations"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/dbx"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLite is a Medium backed by the kv table of an SQLite database.
type SQLite struct {
	db    *sql.DB
	quota int64
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// OpenSQLite opens (creating if needed) the database at dsn and migrates it.
// dsn may be a file path or ":memory:".
func OpenSQLite(ctx context.Context, dsn string, quota int64) (*SQLite, error) {
	if dsn != ":memory:" {
		if _, err := filex.EnsureParentDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection: the medium is synchronous, and ":memory:" databases
	// are per connection
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	return &SQLite{db: db, quota: quota}, nil
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get item[%s]: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) SetItem(ctx context.Context, key string, value []byte) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if s.quota > 0 {
			var others int64
			err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(value)), 0) FROM kv WHERE key <> ?`, key).
				Scan(&others)
			if err != nil {
				return fmt.Errorf("failed to measure usage: %w", err)
			}
			if others+ItemSize(key, value) > s.quota {
				return common.ErrQuotaExceeded
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set item[%s]: %w", key, err)
		}
		return nil
	})
}

func (s *SQLite) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete item[%s]: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
