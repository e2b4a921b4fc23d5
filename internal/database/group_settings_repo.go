package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// GetGroupSetting returns the settings for a group
func (db *DB) GetGroupSetting(ctx context.Context, groupID string) (*models.GroupSetting, error) {
	var setting models.GroupSetting
	query := `SELECT * FROM group_settings WHERE group_id = ?`
	err := db.GetContext(ctx, &setting, query, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group setting: %w", err)
	}
	return &setting, nil
}

// GetEnabledGroupSettings returns all settings with a live delivery schedule
func (db *DB) GetEnabledGroupSettings(ctx context.Context) ([]*models.GroupSetting, error) {
	var settings []*models.GroupSetting
	query := `SELECT * FROM group_settings WHERE enabled = true`
	err := db.SelectContext(ctx, &settings, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled group settings: %w", err)
	}
	return settings, nil
}

// GetAlertingGroupSettings returns all settings opted into alert fan-out
func (db *DB) GetAlertingGroupSettings(ctx context.Context) ([]*models.GroupSetting, error) {
	var settings []*models.GroupSetting
	query := `SELECT * FROM group_settings WHERE should_alert = true`
	err := db.SelectContext(ctx, &settings, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerting group settings: %w", err)
	}
	return settings, nil
}

// UpsertGroupSetting creates or fully overwrites the settings for a group
func (db *DB) UpsertGroupSetting(ctx context.Context, setting *models.GroupSetting) error {
	now := time.Now()
	query := `
		INSERT INTO group_settings (group_id, group_name, interval_minutes, enabled, react_on_message, should_alert, zone_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			group_name = excluded.group_name,
			interval_minutes = excluded.interval_minutes,
			enabled = excluded.enabled,
			react_on_message = excluded.react_on_message,
			should_alert = excluded.should_alert,
			zone_ids = excluded.zone_ids,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		setting.GroupID,
		setting.GroupName,
		setting.IntervalMinutes,
		setting.Enabled,
		setting.ReactOnMessage,
		setting.ShouldAlert,
		setting.ZoneIDs,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert group setting: %w", err)
	}

	saved, err := db.GetGroupSetting(ctx, setting.GroupID)
	if err != nil {
		return err
	}
	*setting = *saved
	return nil
}

// DeleteGroupSetting deletes the settings for a group
func (db *DB) DeleteGroupSetting(ctx context.Context, groupID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM group_settings WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group setting: %w", err)
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
