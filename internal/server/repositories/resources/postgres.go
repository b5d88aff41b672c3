package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/dbx"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, key models.ResourceKey) (models.Resource, error) {
	query := `SELECT version, data, updated_at FROM resources WHERE user_id = $1 AND type = $2 AND id = $3`

	res := models.Resource{ResourceKey: key}
	var data []byte
	err := r.db.QueryRowContext(ctx, query, key.UserID, key.Type, key.ID).Scan(&res.Version, &data, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Resource{}, common.ErrNotFound
	}
	if err != nil {
		return models.Resource{}, fmt.Errorf("db error: %w", err)
	}
	res.Data = json.RawMessage(data)
	return res, nil
}

func (r *PostgresRepository) Create(ctx context.Context, key models.ResourceKey, data json.RawMessage) (int, error) {
	query := `
		INSERT INTO resources (user_id, type, id, version, data, updated_at)
		VALUES ($1, $2, $3, 1, $4, now())
		ON CONFLICT (user_id, type, id) DO NOTHING
		RETURNING version
	`
	return r.returningVersion(ctx, common.ErrVersionConflict, query, key.UserID, key.Type, key.ID, string(data))
}

func (r *PostgresRepository) Update(ctx context.Context, key models.ResourceKey, data json.RawMessage, expected int) (int, error) {
	query := `
		UPDATE resources SET version = version + 1, data = $4, updated_at = now()
		WHERE user_id = $1 AND type = $2 AND id = $3 AND version = $5
		RETURNING version
	`
	return r.returningVersion(ctx, common.ErrNotFound, query, key.UserID, key.Type, key.ID, string(data), expected)
}

func (r *PostgresRepository) Upsert(ctx context.Context, key models.ResourceKey, data json.RawMessage) (int, error) {
	query := `
		INSERT INTO resources (user_id, type, id, version, data, updated_at)
		VALUES ($1, $2, $3, 1, $4, now())
		ON CONFLICT (user_id, type, id)
		DO UPDATE SET version = resources.version + 1, data = EXCLUDED.data, updated_at = now()
		RETURNING version
	`
	return r.returningVersion(ctx, common.ErrNotFound, query, key.UserID, key.Type, key.ID, string(data))
}

func (r *PostgresRepository) returningVersion(ctx context.Context, noRows error, query string, args ...any) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, noRows
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, key models.ResourceKey, expected int) error {
	query := `DELETE FROM resources WHERE user_id = $1 AND type = $2 AND id = $3 AND ($4 < 0 OR version = $4)`

	res, err := r.db.ExecContext(ctx, query, key.UserID, key.Type, key.ID, expected)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
