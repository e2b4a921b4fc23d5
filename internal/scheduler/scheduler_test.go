package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpov/mapwatch/internal/damba"
	"github.com/mkarpov/mapwatch/internal/database"
	"github.com/mkarpov/mapwatch/pkg/models"
)

// --- fakes ---

type fakeSettings struct {
	mu       sync.Mutex
	settings map[string]*models.GroupSetting
}

func newFakeSettings(settings ...*models.GroupSetting) *fakeSettings {
	f := &fakeSettings{settings: make(map[string]*models.GroupSetting)}
	for _, s := range settings {
		f.settings[s.GroupID] = s
	}
	return f
}

func (f *fakeSettings) GetGroupSetting(ctx context.Context, groupID string) (*models.GroupSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[groupID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSettings) GetEnabledGroupSettings(ctx context.Context) ([]*models.GroupSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.GroupSetting
	for _, s := range f.settings {
		if s.Enabled {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSettings) GetAlertingGroupSettings(ctx context.Context) ([]*models.GroupSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.GroupSetting
	for _, s := range f.settings {
		if s.ShouldAlert {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSettings) remove(groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.settings, groupID)
}

type fakeCapturer struct {
	mu    sync.Mutex
	path  string
	calls int
	err   error
}

func (f *fakeCapturer) Capture(ctx context.Context) (*models.Screenshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Screenshot{Filename: filepath.Base(f.path), Path: f.path, CreatedAt: time.Now()}, nil
}

func (f *fakeCapturer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAuth struct{ ok bool }

func (f *fakeAuth) IsAuthenticated(ctx context.Context) bool { return f.ok }

type fakeAlerts struct {
	check damba.AlertCheck
	err   error
}

func (f *fakeAlerts) ShouldAlert(ctx context.Context) (damba.AlertCheck, error) {
	return f.check, f.err
}

type sentImage struct {
	chatID  string
	caption string
}

type fakeSender struct {
	mu      sync.Mutex
	ready   bool
	sent    []sentImage
	failFor map[string]bool
}

func (f *fakeSender) IsReady() bool { return f.ready }

func (f *fakeSender) SendImage(ctx context.Context, chatID string, png []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, sentImage{chatID: chatID, caption: caption})
	return nil
}

func (f *fakeSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, s := range f.sent {
		ids = append(ids, s.chatID)
	}
	return ids
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeShot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenshot-test.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	return path
}

// --- boundary alignment ---

func TestNextBoundary(t *testing.T) {
	day := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		interval int
		want     time.Time
	}{
		{"mid interval", day.Add(3*time.Minute + 27*time.Second), 10, day.Add(10 * time.Minute)},
		{"exact boundary schedules next", day.Add(10 * time.Minute), 10, day.Add(20 * time.Minute)},
		{"hour rollover", day.Add(59*time.Minute + 59*time.Second), 5, day.Add(60 * time.Minute)},
		{"hourly interval", day.Add(3 * time.Minute), 60, day.Add(60 * time.Minute)},
		{"every minute", day.Add(3*time.Minute + 5*time.Second), 1, day.Add(4 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextBoundary(tt.now, tt.interval))
		})
	}
}

// --- job registry ---

func enabledSetting(groupID string, interval int) *models.GroupSetting {
	return &models.GroupSetting{
		GroupID:         groupID,
		GroupName:       "Test Group",
		IntervalMinutes: interval,
		Enabled:         true,
	}
}

func TestStartThenStopLeavesNoJob(t *testing.T) {
	ctx := context.Background()
	settings := newFakeSettings(enabledSetting("g1", 1))
	capturer := &fakeCapturer{path: writeShot(t)}
	s := New(settings, capturer, &fakeAuth{ok: true}, &fakeSender{ready: true}, testLogger())

	s.StartJob(ctx, "g1")
	require.Equal(t, 1, s.JobCount())

	s.StopJob("g1")
	assert.Equal(t, 0, s.JobCount())

	// The alignment timer must be cancelled too: nothing fires afterwards
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, capturer.count())
}

func TestStartJobDisabledSettingIsNoop(t *testing.T) {
	ctx := context.Background()
	setting := enabledSetting("g1", 10)
	setting.Enabled = false
	s := New(newFakeSettings(setting), &fakeCapturer{}, &fakeAuth{ok: true}, &fakeSender{ready: true}, testLogger())

	s.StartJob(ctx, "g1")
	assert.Equal(t, 0, s.JobCount())
}

func TestStartJobMissingSettingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSettings(), &fakeCapturer{}, &fakeAuth{ok: true}, &fakeSender{ready: true}, testLogger())

	s.StartJob(ctx, "nope")
	assert.Equal(t, 0, s.JobCount())
}

func TestStartJobIsIdempotent(t *testing.T) {
	ctx := context.Background()
	settings := newFakeSettings(enabledSetting("g1", 10))
	s := New(settings, &fakeCapturer{}, &fakeAuth{ok: true}, &fakeSender{ready: true}, testLogger())

	s.StartJob(ctx, "g1")
	s.StartJob(ctx, "g1")
	assert.Equal(t, 1, s.JobCount())

	s.StopAll()
	assert.Equal(t, 0, s.JobCount())
}

func TestStartAllStartsEnabledOnly(t *testing.T) {
	ctx := context.Background()
	disabled := enabledSetting("g2", 5)
	disabled.Enabled = false
	settings := newFakeSettings(enabledSetting("g1", 10), disabled, enabledSetting("g3", 30))
	s := New(settings, &fakeCapturer{}, &fakeAuth{ok: true}, &fakeSender{ready: true}, testLogger())

	require.NoError(t, s.StartAll(ctx))
	assert.Equal(t, 2, s.JobCount())

	s.StopAll()
}

// --- delivery ticks ---

func TestDeliverSendsScreenshot(t *testing.T) {
	settings := newFakeSettings(enabledSetting("g1", 10))
	capturer := &fakeCapturer{path: writeShot(t)}
	sender := &fakeSender{ready: true}
	s := New(settings, capturer, &fakeAuth{ok: true}, sender, testLogger())

	s.deliver(&job{groupID: "g1", intervalMinutes: 10, done: make(chan struct{})})

	assert.Equal(t, 1, capturer.count())
	assert.Equal(t, []string{"g1"}, sender.sentTo())
}

func TestDeliverSkipsTickWhenNotAuthenticated(t *testing.T) {
	settings := newFakeSettings(enabledSetting("g1", 10))
	capturer := &fakeCapturer{path: writeShot(t)}
	sender := &fakeSender{ready: true}
	s := New(settings, capturer, &fakeAuth{ok: false}, sender, testLogger())

	j := &job{groupID: "g1", intervalMinutes: 10, done: make(chan struct{})}
	s.setJob(j)
	s.deliver(j)

	// Tick skipped but the job stays scheduled
	assert.Equal(t, 0, capturer.count())
	assert.Empty(t, sender.sentTo())
	assert.Equal(t, 1, s.JobCount())

	s.StopAll()
}

func TestDeliverStopsJobWhenSettingRemoved(t *testing.T) {
	settings := newFakeSettings(enabledSetting("g1", 10))
	sender := &fakeSender{ready: true}
	s := New(settings, &fakeCapturer{path: writeShot(t)}, &fakeAuth{ok: true}, sender, testLogger())

	j := &job{groupID: "g1", intervalMinutes: 10, done: make(chan struct{})}
	s.setJob(j)

	settings.remove("g1")
	s.deliver(j)

	assert.Equal(t, 0, s.JobCount())
	assert.Empty(t, sender.sentTo())
}

func TestDeliverStopsJobWhenSettingDisabled(t *testing.T) {
	setting := enabledSetting("g1", 10)
	settings := newFakeSettings(setting)
	sender := &fakeSender{ready: true}
	s := New(settings, &fakeCapturer{path: writeShot(t)}, &fakeAuth{ok: true}, sender, testLogger())

	j := &job{groupID: "g1", intervalMinutes: 10, done: make(chan struct{})}
	s.setJob(j)

	setting.Enabled = false
	s.deliver(j)

	assert.Equal(t, 0, s.JobCount())
	assert.Empty(t, sender.sentTo())
}

func TestDeliverSkipsWhenSenderNotReady(t *testing.T) {
	settings := newFakeSettings(enabledSetting("g1", 10))
	capturer := &fakeCapturer{path: writeShot(t)}
	s := New(settings, capturer, &fakeAuth{ok: true}, &fakeSender{ready: false}, testLogger())

	s.deliver(&job{groupID: "g1", intervalMinutes: 10, done: make(chan struct{})})
	assert.Equal(t, 0, capturer.count())
}

func TestDeliverFailureKeepsJobRunning(t *testing.T) {
	settings := newFakeSettings(enabledSetting("g1", 10))
	capturer := &fakeCapturer{err: context.DeadlineExceeded}
	s := New(settings, capturer, &fakeAuth{ok: true}, &fakeSender{ready: true}, testLogger())

	j := &job{groupID: "g1", intervalMinutes: 10, done: make(chan struct{})}
	s.setJob(j)
	s.deliver(j)

	// Capture failed; only setting removal or disable stops the job
	assert.Equal(t, 1, s.JobCount())

	s.StopAll()
}
