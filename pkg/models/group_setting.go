package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AllowedIntervals are the delivery intervals the operator can pick from.
var AllowedIntervals = []int{1, 5, 10, 15, 30, 60}

// GroupSetting holds per-group delivery configuration
type GroupSetting struct {
	ID              int64      `db:"id" json:"id"`
	GroupID         string     `db:"group_id" json:"groupId"`                 // WhatsApp group JID
	GroupName       string     `db:"group_name" json:"groupName"`             // Display name at save time
	IntervalMinutes int        `db:"interval_minutes" json:"intervalMinutes"` // Delivery period, one of AllowedIntervals
	Enabled         bool       `db:"enabled" json:"enabled"`                  // Drives the recurring delivery job
	ReactOnMessage  string     `db:"react_on_message" json:"reactOnMessage"`  // Keyword trigger, empty = disabled
	ShouldAlert     bool       `db:"should_alert" json:"shouldAlert"`         // Participate in alert fan-out
	ZoneIDs         StringList `db:"zone_ids" json:"zoneIds"`                 // External zone IDs the group cares about
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// IntervalAllowed reports whether minutes is a valid delivery interval
func IntervalAllowed(minutes int) bool {
	for _, m := range AllowedIntervals {
		if m == minutes {
			return true
		}
	}
	return false
}

// StringList is a []string stored as a JSON array in a TEXT column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	return nil
}

// Intersects reports whether the list shares at least one element with other
func (l StringList) Intersects(other []string) bool {
	for _, a := range l {
		for _, b := range other {
			if a == b {
				return true
			}
		}
	}
	return false
}
