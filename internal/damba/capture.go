package damba

import (
	"context"
	"time"

	"github.com/mkarpov/mapwatch/internal/metrics"
	"github.com/mkarpov/mapwatch/pkg/models"
)

// Capture waits for the map page to reach a stable rendered state, then
// replaces the retained artifact with a fresh full-page screenshot. The
// stability wait is best-effort: a slow page degrades the image, it never
// blocks the capture indefinitely.
func (s *Service) Capture(ctx context.Context) (*models.Screenshot, error) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	start := time.Now()

	if err := s.waitStable(ctx); err != nil {
		if ctx.Err() != nil {
			metrics.CapturesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		// Proceed anyway; the image may be incomplete but a livelocked
		// capture loop is worse
		s.logger.Warn("page stability wait failed, capturing anyway", "error", err)
	}

	png, err := s.page.Screenshot(ctx)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	shot, err := s.shots.Replace(png)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.CapturesTotal.WithLabelValues("ok").Inc()
	metrics.CaptureDuration.Observe(time.Since(start).Seconds())
	return shot, nil
}

// waitStable waits for document readiness (bounded), then for the page's
// resource count to stop growing (bounded), then a fixed settle delay.
// Callers hold pageMu.
func (s *Service) waitStable(ctx context.Context) error {
	const pollEvery = 100 * time.Millisecond

	// document.readyState === "complete", capped by PageLoadTimeout
	loadDeadline := time.Now().Add(s.opts.PageLoadTimeout)
	for {
		var state string
		if err := s.page.Evaluate(ctx, `document.readyState`, &state); err != nil {
			return err
		}
		if state == "complete" {
			break
		}
		if time.Now().After(loadDeadline) {
			s.logger.Warn("page load wait timed out", "state", state)
			break
		}
		if err := sleepCtx(ctx, pollEvery); err != nil {
			return err
		}
	}

	// Network-idle heuristic: the resource entry count must hold still for
	// a few consecutive polls, capped by NetworkIdleWindow
	const stablePolls = 3
	idleDeadline := time.Now().Add(s.opts.NetworkIdleWindow)
	lastCount, stable := -1, 0
	for time.Now().Before(idleDeadline) {
		var count int
		if err := s.page.Evaluate(ctx, `performance.getEntriesByType('resource').length`, &count); err != nil {
			return err
		}
		if count == lastCount {
			stable++
			if stable >= stablePolls {
				break
			}
		} else {
			stable = 0
			lastCount = count
		}
		if err := sleepCtx(ctx, pollEvery); err != nil {
			return err
		}
	}

	return sleepCtx(ctx, s.opts.SettleDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
