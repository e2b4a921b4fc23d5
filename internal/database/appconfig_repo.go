package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// GetAppConfig returns the singleton configuration row, creating it if absent
func (db *DB) GetAppConfig(ctx context.Context) (*models.AppConfig, error) {
	var cfg models.AppConfig
	query := `SELECT * FROM app_config WHERE id = 1`
	err := db.GetContext(ctx, &cfg, query)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.ExecContext(ctx, `INSERT INTO app_config (id) VALUES (1)`); err != nil {
			return nil, fmt.Errorf("failed to create app config: %w", err)
		}
		if err := db.GetContext(ctx, &cfg, query); err != nil {
			return nil, fmt.Errorf("failed to get app config: %w", err)
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app config: %w", err)
	}
	return &cfg, nil
}

// SaveDambaToken overwrites the stored credential and its derived expiry
func (db *DB) SaveDambaToken(ctx context.Context, token string, expiresAt *int64) error {
	if _, err := db.GetAppConfig(ctx); err != nil {
		return err
	}
	var exp sql.NullInt64
	if expiresAt != nil {
		exp = sql.NullInt64{Int64: *expiresAt, Valid: true}
	}
	query := `UPDATE app_config SET damba_token = ?, token_expires_at = ?, updated_at = ? WHERE id = 1`
	if _, err := db.ExecContext(ctx, query, token, exp, time.Now()); err != nil {
		return fmt.Errorf("failed to save damba token: %w", err)
	}
	return nil
}

// SaveAlertsSnapshot overwrites the persisted page-storage blob
func (db *DB) SaveAlertsSnapshot(ctx context.Context, snapshot string) error {
	if _, err := db.GetAppConfig(ctx); err != nil {
		return err
	}
	query := `UPDATE app_config SET alerts_snapshot = ?, updated_at = ? WHERE id = 1`
	if _, err := db.ExecContext(ctx, query, snapshot, time.Now()); err != nil {
		return fmt.Errorf("failed to save alerts snapshot: %w", err)
	}
	return nil
}

// SaveMapCenter stores the "[lat,lng]" coordinate injected on authenticate
func (db *DB) SaveMapCenter(ctx context.Context, coord string) error {
	if _, err := db.GetAppConfig(ctx); err != nil {
		return err
	}
	query := `UPDATE app_config SET map_center = ?, updated_at = ? WHERE id = 1`
	if _, err := db.ExecContext(ctx, query, coord, time.Now()); err != nil {
		return fmt.Errorf("failed to save map center: %w", err)
	}
	return nil
}
