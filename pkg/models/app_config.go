package models

import (
	"database/sql"
	"time"
)

// AppConfig is the singleton configuration row (id=1) holding the map-service
// credential and the last persisted alerts snapshot.
type AppConfig struct {
	ID             int64         `db:"id"`
	DambaToken     string        `db:"damba_token"`      // Bearer token for the map service
	TokenExpiresAt sql.NullInt64 `db:"token_expires_at"` // Unix seconds from the token's exp claim
	AlertsSnapshot string        `db:"alerts_snapshot"`  // Last-seen page localStorage blob (JSON)
	MapCenter      string        `db:"map_center"`       // "[lat,lng]" injected on authenticate
	UpdatedAt      time.Time     `db:"updated_at"`
}
