package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/genstudio/internal/database"
)

// KVRepository stores opaque string values under string keys in app_state.
type KVRepository struct {
	db     *sql.DB
	driver string
}

func NewKVRepository(db *sql.DB, driver string) *KVRepository {
	return &KVRepository{db: db, driver: driver}
}

func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT state_value FROM app_state WHERE state_key = ?`
	var value string
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *KVRepository) Put(ctx context.Context, key, value string) error {
	query := `
INSERT INTO app_state (state_key, state_value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = CURRENT_TIMESTAMP`
	if r.driver == database.DriverMySQL {
		query = `
INSERT INTO app_state (state_key, state_value) VALUES (?, ?)
ON DUPLICATE KEY UPDATE state_value = VALUES(state_value)`
	}
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM app_state WHERE state_key = ?`
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
