package models

import "time"

// Zone is an operator-named geographic zone used to filter alerts.
// ZoneID is the map service's external identifier; group settings reference
// zones by it, not by the internal row id.
type Zone struct {
	ID        int64     `db:"id" json:"id"`
	ZoneID    string    `db:"zone_id" json:"zoneId"` // External map-service identifier, unique
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
