package models

// Alert is a single alert event as the map service stores it in the page's
// localStorage. Only the fields the diff engine reads are modeled.
type Alert struct {
	ID           string         `json:"id"`
	CreatedAt    string         `json:"createdAt"`
	AlertType    string         `json:"alertType"`
	AlertZoneIDs []string       `json:"alertZoneIds"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Qualifies reports whether the alert touches at least one zone
func (a Alert) Qualifies() bool {
	return len(a.AlertZoneIDs) > 0
}

// AlertsData is the structure of the "alerts" localStorage value
type AlertsData struct {
	Alerts   []Alert `json:"alerts"`
	EventLog []Alert `json:"eventLog,omitempty"`
}
