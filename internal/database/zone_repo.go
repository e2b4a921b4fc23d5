package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// CreateZone creates a new zone
func (db *DB) CreateZone(ctx context.Context, zone *models.Zone) error {
	query := `INSERT INTO zones (zone_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, zone.ZoneID, zone.Name, now, now)
	if err != nil {
		return fmt.Errorf("failed to create zone: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	zone.ID = id
	zone.CreatedAt = now
	zone.UpdatedAt = now
	return nil
}

// GetZoneByID returns a zone by its internal id
func (db *DB) GetZoneByID(ctx context.Context, id int64) (*models.Zone, error) {
	var zone models.Zone
	query := `SELECT * FROM zones WHERE id = ?`
	err := db.GetContext(ctx, &zone, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}
	return &zone, nil
}

// GetAllZones returns all zones ordered by name
func (db *DB) GetAllZones(ctx context.Context) ([]*models.Zone, error) {
	var zones []*models.Zone
	query := `SELECT * FROM zones ORDER BY name`
	err := db.SelectContext(ctx, &zones, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get zones: %w", err)
	}
	return zones, nil
}

// UpdateZone renames a zone or changes its external identifier
func (db *DB) UpdateZone(ctx context.Context, id int64, zoneID, name string) (*models.Zone, error) {
	query := `UPDATE zones SET zone_id = ?, name = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, zoneID, name, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update zone: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return db.GetZoneByID(ctx, id)
}

// DeleteZone deletes a zone. Group settings referencing its zone_id are left
// untouched; stale references simply stop matching alerts.
func (db *DB) DeleteZone(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
