package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mkarpov/mapwatch/internal/damba"
	"github.com/mkarpov/mapwatch/internal/database"
	"github.com/mkarpov/mapwatch/internal/metrics"
	"github.com/mkarpov/mapwatch/pkg/models"
)

// SettingsStore loads per-group delivery settings
type SettingsStore interface {
	GetGroupSetting(ctx context.Context, groupID string) (*models.GroupSetting, error)
	GetEnabledGroupSettings(ctx context.Context) ([]*models.GroupSetting, error)
	GetAlertingGroupSettings(ctx context.Context) ([]*models.GroupSetting, error)
}

// Capturer produces a fresh screenshot artifact
type Capturer interface {
	Capture(ctx context.Context) (*models.Screenshot, error)
}

// AuthChecker reports current map-service session validity
type AuthChecker interface {
	IsAuthenticated(ctx context.Context) bool
}

// AlertChecker polls the map service for newly landed alerts
type AlertChecker interface {
	ShouldAlert(ctx context.Context) (damba.AlertCheck, error)
}

// Sender delivers images to chats
type Sender interface {
	IsReady() bool
	SendImage(ctx context.Context, chatID string, png []byte, caption string) error
}

const deliverTimeout = 2 * time.Minute

// job is one live per-group delivery schedule. Closing done cancels both the
// pending alignment timer and the recurring ticker.
type job struct {
	groupID         string
	intervalMinutes int
	done            chan struct{}
}

// Scheduler maintains one recurring delivery job per enabled group, aligned
// to wall-clock interval boundaries. The registry guarantees at most one live
// job per group id.
type Scheduler struct {
	settings SettingsStore
	capturer Capturer
	auth     AuthChecker
	sender   Sender
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates the delivery scheduler
func New(settings SettingsStore, capturer Capturer, auth AuthChecker, sender Sender, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		settings: settings,
		capturer: capturer,
		auth:     auth,
		sender:   sender,
		logger:   logger.With("component", "scheduler"),
		jobs:     make(map[string]*job),
	}
}

// StartAll starts jobs for every enabled group setting. Used at startup.
func (s *Scheduler) StartAll(ctx context.Context) error {
	settings, err := s.settings.GetEnabledGroupSettings(ctx)
	if err != nil {
		return err
	}
	for _, setting := range settings {
		s.StartJob(ctx, setting.GroupID)
	}
	s.logger.Info("delivery jobs started", "count", len(settings))
	return nil
}

// StartJob starts (or restarts) the delivery job for a group. A missing or
// disabled setting is a no-op.
func (s *Scheduler) StartJob(ctx context.Context, groupID string) {
	s.StopJob(groupID)

	setting, err := s.settings.GetGroupSetting(ctx, groupID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Error("failed to load group setting", "group", groupID, "error", err)
		}
		return
	}
	if !setting.Enabled {
		return
	}

	j := &job{
		groupID:         groupID,
		intervalMinutes: setting.IntervalMinutes,
		done:            make(chan struct{}),
	}
	s.setJob(j)
	go s.run(j)

	s.logger.Info("delivery job started",
		"group", groupID,
		"name", setting.GroupName,
		"interval_minutes", setting.IntervalMinutes,
	)
}

// StopJob cancels the job for a group. Safe to call when none exists.
func (s *Scheduler) StopJob(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearJobLocked(groupID)
}

// StopAll cancels every job. Used at shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for groupID := range s.jobs {
		s.clearJobLocked(groupID)
	}
	s.logger.Info("all delivery jobs stopped")
}

// JobCount returns the number of live jobs
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) setJob(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// StartJob stops the previous job first, but guard anyway so the
	// at-most-one invariant cannot break
	s.clearJobLocked(j.groupID)
	s.jobs[j.groupID] = j
	metrics.ScheduledJobs.Set(float64(len(s.jobs)))
}

func (s *Scheduler) clearJobLocked(groupID string) {
	if j, ok := s.jobs[groupID]; ok {
		close(j.done)
		delete(s.jobs, groupID)
		metrics.ScheduledJobs.Set(float64(len(s.jobs)))
		s.logger.Info("delivery job stopped", "group", groupID)
	}
}

// stopIfCurrent cancels the job only if it is still the registered one for
// its group, so a self-stopping tick cannot kill a replacement job.
func (s *Scheduler) stopIfCurrent(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[j.groupID] == j {
		s.clearJobLocked(j.groupID)
	}
}

// run fires once at the next wall-clock boundary, then at every interval.
// Deliveries happen at round boundaries (:00/:10/:20 for a 10 minute
// interval), not at registration time plus N minutes.
func (s *Scheduler) run(j *job) {
	interval := time.Duration(j.intervalMinutes) * time.Minute
	timer := time.NewTimer(time.Until(nextBoundary(time.Now(), j.intervalMinutes)))
	defer timer.Stop()

	select {
	case <-j.done:
		return
	case <-timer.C:
	}
	s.deliver(j)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			s.deliver(j)
		}
	}
}

// nextBoundary computes the next wall-clock instant whose minute is a
// multiple of intervalMinutes. A tick landing exactly on a boundary schedules
// the one after it.
func nextBoundary(now time.Time, intervalMinutes int) time.Time {
	until := intervalMinutes - now.Minute()%intervalMinutes
	return now.Truncate(time.Minute).Add(time.Duration(until) * time.Minute)
}

// deliver runs one scheduled tick. Failures are logged and leave the job
// running; only a removed or disabled setting stops it.
func (s *Scheduler) deliver(j *job) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if !s.sender.IsReady() {
		s.logger.Warn("messaging client not ready, skipping tick", "group", j.groupID)
		return
	}

	setting, err := s.settings.GetGroupSetting(ctx, j.groupID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Info("setting removed, stopping job", "group", j.groupID)
			s.stopIfCurrent(j)
			return
		}
		s.logger.Error("failed to load setting for tick", "group", j.groupID, "error", err)
		return
	}
	if !setting.Enabled {
		s.logger.Info("setting disabled, stopping job", "group", j.groupID)
		s.stopIfCurrent(j)
		return
	}

	if !s.auth.IsAuthenticated(ctx) {
		s.logger.Warn("not authenticated, skipping tick", "group", j.groupID)
		return
	}

	shot, err := s.capturer.Capture(ctx)
	if err != nil {
		s.logger.Error("capture failed", "group", j.groupID, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("schedule", "error").Inc()
		return
	}

	png, err := os.ReadFile(shot.Path)
	if err != nil {
		s.logger.Error("failed to read screenshot", "file", shot.Path, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("schedule", "error").Inc()
		return
	}

	if err := s.sender.SendImage(ctx, j.groupID, png, ""); err != nil {
		s.logger.Error("delivery failed", "group", j.groupID, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("schedule", "error").Inc()
		return
	}

	metrics.DeliveriesTotal.WithLabelValues("schedule", "ok").Inc()
	s.logger.Info("screenshot delivered", "group", j.groupID, "name", setting.GroupName)
}
