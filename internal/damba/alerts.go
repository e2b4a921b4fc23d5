package damba

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// AlertCheck is the outcome of one alert diff poll
type AlertCheck struct {
	HasAlert bool
	ZoneIDs  []string // Zones of the most recent qualifying alert
}

// ShouldAlert reads the alert list from the page's localStorage, diffs the
// qualifying-alert count against the persisted snapshot and reports whether a
// zone-qualifying alert landed since the last poll.
//
// The snapshot is persisted on every call, fired or not, so a detected change
// is never re-reported on the next poll. Two transitions are deliberately
// suppressed: the very first observation (no baseline yet) and any transition
// involving a zero count, since a page or session reload momentarily reads as
// an empty alert list.
func (s *Service) ShouldAlert(ctx context.Context) (AlertCheck, error) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	blob, err := s.readStorage(ctx)
	if err != nil {
		return AlertCheck{}, fmt.Errorf("failed to read page storage: %w", err)
	}

	current, err := qualifyingAlerts(blob)
	if err != nil {
		return AlertCheck{}, fmt.Errorf("failed to parse page alerts: %w", err)
	}

	cfg, err := s.store.GetAppConfig(ctx)
	if err != nil {
		return AlertCheck{}, err
	}

	// Cold start: persist a baseline, never alert on the first observation
	if cfg.AlertsSnapshot == "" {
		if err := s.store.SaveAlertsSnapshot(ctx, blob); err != nil {
			return AlertCheck{}, err
		}
		return AlertCheck{}, nil
	}

	previous, err := qualifyingAlerts(cfg.AlertsSnapshot)
	if err != nil {
		// A corrupt baseline is replaced and treated like a cold start
		s.logger.Warn("stored snapshot unparseable, resetting baseline", "error", err)
		previous = nil
	}

	if err := s.store.SaveAlertsSnapshot(ctx, blob); err != nil {
		return AlertCheck{}, err
	}

	currentCount, previousCount := len(current), len(previous)
	if currentCount == 0 || previousCount == 0 || currentCount == previousCount {
		return AlertCheck{}, nil
	}

	// Only the newest qualifying alert's zones are reported, even if several
	// alerts landed between polls
	last := current[currentCount-1]
	s.logger.Info("alert change detected",
		"previous", previousCount,
		"current", currentCount,
		"zones", last.AlertZoneIDs,
	)
	return AlertCheck{HasAlert: true, ZoneIDs: last.AlertZoneIDs}, nil
}

// readStorage serializes the page's full localStorage into a JSON blob.
// Callers hold pageMu.
func (s *Service) readStorage(ctx context.Context) (string, error) {
	var blob string
	expr := `JSON.stringify(Object.fromEntries(Object.entries(window.localStorage)))`
	if err := s.page.Evaluate(ctx, expr, &blob); err != nil {
		return "", err
	}
	return blob, nil
}

// qualifyingAlerts extracts the alerts with a non-empty zone list from a
// localStorage blob. A blob without an alerts entry yields an empty list.
func qualifyingAlerts(blob string) ([]models.Alert, error) {
	var storage map[string]string
	if err := json.Unmarshal([]byte(blob), &storage); err != nil {
		return nil, fmt.Errorf("failed to parse storage blob: %w", err)
	}

	raw, ok := storage["alerts"]
	if !ok || raw == "" {
		return nil, nil
	}

	var data models.AlertsData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to parse alerts entry: %w", err)
	}

	var qualifying []models.Alert
	for _, alert := range data.Alerts {
		if alert.Qualifies() {
			qualifying = append(qualifying, alert)
		}
	}
	return qualifying, nil
}
