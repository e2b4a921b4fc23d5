package scheduler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mkarpov/mapwatch/internal/metrics"
)

// Monitor polls the alert diff engine at a fixed short period and fans one
// capture out to every alert-subscribed group whose zone filter intersects
// the affected zones. It runs independently of the per-group delivery jobs.
type Monitor struct {
	settings SettingsStore
	capturer Capturer
	auth     AuthChecker
	alerts   AlertChecker
	sender   Sender
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates the alert monitor
func NewMonitor(settings SettingsStore, capturer Capturer, auth AuthChecker, alerts AlertChecker, sender Sender, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		settings: settings,
		capturer: capturer,
		auth:     auth,
		alerts:   alerts,
		sender:   sender,
		interval: interval,
		logger:   logger.With("component", "alert_monitor"),
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("alert monitor started", "interval", m.interval)

	t := time.NewTicker(m.interval)
	defer t.Stop()

	m.checkOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("alert monitor stopped")
			return
		case <-t.C:
			m.checkOnce(ctx)
		}
	}
}

// checkOnce runs one poll cycle. Any failure skips the cycle; the next tick
// retries from scratch.
func (m *Monitor) checkOnce(ctx context.Context) {
	if !m.auth.IsAuthenticated(ctx) {
		metrics.AlertChecksTotal.WithLabelValues("skipped").Inc()
		return
	}

	groups, err := m.settings.GetAlertingGroupSettings(ctx)
	if err != nil {
		m.logger.Error("failed to load alerting groups", "error", err)
		metrics.AlertChecksTotal.WithLabelValues("error").Inc()
		return
	}
	if len(groups) == 0 {
		metrics.AlertChecksTotal.WithLabelValues("skipped").Inc()
		return
	}

	check, err := m.alerts.ShouldAlert(ctx)
	if err != nil {
		m.logger.Error("alert check failed", "error", err)
		metrics.AlertChecksTotal.WithLabelValues("error").Inc()
		return
	}
	if !check.HasAlert {
		metrics.AlertChecksTotal.WithLabelValues("no_change").Inc()
		return
	}
	metrics.AlertChecksTotal.WithLabelValues("alert").Inc()

	m.logger.Info("alert detected, delivering to matching groups", "zones", check.ZoneIDs)

	// One capture shared by every matching group in this tick
	shot, err := m.capturer.Capture(ctx)
	if err != nil {
		m.logger.Error("capture failed for alert", "error", err)
		return
	}
	png, err := os.ReadFile(shot.Path)
	if err != nil {
		m.logger.Error("failed to read screenshot", "file", shot.Path, "error", err)
		return
	}

	for _, group := range groups {
		// Zone opt-in is explicit: a group with no zones never matches
		if !group.ZoneIDs.Intersects(check.ZoneIDs) {
			continue
		}
		if err := m.sender.SendImage(ctx, group.GroupID, png, ""); err != nil {
			m.logger.Error("alert delivery failed", "group", group.GroupID, "error", err)
			metrics.DeliveriesTotal.WithLabelValues("alert", "error").Inc()
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues("alert", "ok").Inc()
		m.logger.Info("alert screenshot delivered", "group", group.GroupID, "name", group.GroupName)
	}
}
