package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mkarpov/mapwatch/internal/damba"
	"github.com/mkarpov/mapwatch/pkg/models"
)

func alertingSetting(groupID string, zones ...string) *models.GroupSetting {
	return &models.GroupSetting{
		GroupID:     groupID,
		GroupName:   "Alert Group",
		ShouldAlert: true,
		ZoneIDs:     zones,
	}
}

func testMonitor(settings *fakeSettings, capturer *fakeCapturer, auth *fakeAuth, alerts *fakeAlerts, sender *fakeSender) *Monitor {
	return NewMonitor(settings, capturer, auth, alerts, sender, time.Second, testLogger())
}

func TestMonitorSkipsWhenNotAuthenticated(t *testing.T) {
	ctx := context.Background()
	capturer := &fakeCapturer{path: writeShot(t)}
	alerts := &fakeAlerts{check: damba.AlertCheck{HasAlert: true, ZoneIDs: []string{"z1"}}}
	m := testMonitor(newFakeSettings(alertingSetting("g1", "z1")), capturer, &fakeAuth{ok: false}, alerts, &fakeSender{ready: true})

	m.checkOnce(ctx)
	assert.Equal(t, 0, capturer.count())
}

func TestMonitorSkipsWithoutSubscribedGroups(t *testing.T) {
	ctx := context.Background()
	capturer := &fakeCapturer{path: writeShot(t)}
	alerts := &fakeAlerts{check: damba.AlertCheck{HasAlert: true, ZoneIDs: []string{"z1"}}}
	m := testMonitor(newFakeSettings(), capturer, &fakeAuth{ok: true}, alerts, &fakeSender{ready: true})

	m.checkOnce(ctx)
	assert.Equal(t, 0, capturer.count())
}

func TestMonitorSkipsWithoutAlertChange(t *testing.T) {
	ctx := context.Background()
	capturer := &fakeCapturer{path: writeShot(t)}
	m := testMonitor(newFakeSettings(alertingSetting("g1", "z1")), capturer, &fakeAuth{ok: true}, &fakeAlerts{}, &fakeSender{ready: true})

	m.checkOnce(ctx)
	assert.Equal(t, 0, capturer.count())
}

func TestMonitorDeliversOnlyToIntersectingZones(t *testing.T) {
	ctx := context.Background()
	settings := newFakeSettings(
		alertingSetting("g-match", "z1", "z2"),
		alertingSetting("g-other", "z9"),
		alertingSetting("g-empty"), // no zones: explicit opt-in required, never matches
	)
	capturer := &fakeCapturer{path: writeShot(t)}
	alerts := &fakeAlerts{check: damba.AlertCheck{HasAlert: true, ZoneIDs: []string{"z2", "z3"}}}
	sender := &fakeSender{ready: true}
	m := testMonitor(settings, capturer, &fakeAuth{ok: true}, alerts, sender)

	m.checkOnce(ctx)

	assert.Equal(t, []string{"g-match"}, sender.sentTo())
	// One shared capture for the whole tick, not one per destination
	assert.Equal(t, 1, capturer.count())
}

func TestMonitorIsolatesPerGroupFailures(t *testing.T) {
	ctx := context.Background()
	settings := newFakeSettings(
		alertingSetting("g-fail", "z1"),
		alertingSetting("g-ok", "z1"),
	)
	capturer := &fakeCapturer{path: writeShot(t)}
	alerts := &fakeAlerts{check: damba.AlertCheck{HasAlert: true, ZoneIDs: []string{"z1"}}}
	sender := &fakeSender{ready: true, failFor: map[string]bool{"g-fail": true}}
	m := testMonitor(settings, capturer, &fakeAuth{ok: true}, alerts, sender)

	m.checkOnce(ctx)

	// The failing destination must not block the healthy one
	assert.Equal(t, []string{"g-ok"}, sender.sentTo())
}

func TestMonitorSkipsCycleOnCheckError(t *testing.T) {
	ctx := context.Background()
	capturer := &fakeCapturer{path: writeShot(t)}
	alerts := &fakeAlerts{err: context.DeadlineExceeded}
	m := testMonitor(newFakeSettings(alertingSetting("g1", "z1")), capturer, &fakeAuth{ok: true}, alerts, &fakeSender{ready: true})

	m.checkOnce(ctx)
	assert.Equal(t, 0, capturer.count())
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := testMonitor(newFakeSettings(), &fakeCapturer{}, &fakeAuth{ok: false}, &fakeAlerts{}, &fakeSender{})

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
}
