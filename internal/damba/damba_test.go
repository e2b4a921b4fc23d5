package damba

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// --- fakes ---

type fakePage struct {
	mu            sync.Mutex
	storageBlob   string
	readyState    string
	resourceCount int
	screenshotPNG []byte
	navigated     []string
	restarts      int
	evaluated     []string
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, expr string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, expr)

	switch {
	case expr == "document.readyState":
		state := p.readyState
		if state == "" {
			state = "complete"
		}
		*out.(*string) = state
	case strings.Contains(expr, "getEntriesByType"):
		*out.(*int) = p.resourceCount
	case strings.Contains(expr, "window.localStorage") && strings.HasPrefix(expr, "JSON.stringify"):
		*out.(*string) = p.storageBlob
	}
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.screenshotPNG, nil
}

func (p *fakePage) Restart(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	return nil
}

type fakeConfigStore struct {
	mu        sync.Mutex
	cfg       models.AppConfig
	snapshots []string
}

func (s *fakeConfigStore) GetAppConfig(ctx context.Context) (*models.AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	return &cfg, nil
}

func (s *fakeConfigStore) SaveDambaToken(ctx context.Context, token string, expiresAt *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.DambaToken = token
	if expiresAt != nil {
		s.cfg.TokenExpiresAt = sql.NullInt64{Int64: *expiresAt, Valid: true}
	} else {
		s.cfg.TokenExpiresAt = sql.NullInt64{}
	}
	return nil
}

func (s *fakeConfigStore) SaveAlertsSnapshot(ctx context.Context, snapshot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AlertsSnapshot = snapshot
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

type fakeArtifacts struct {
	mu       sync.Mutex
	replaced [][]byte
	last     *models.Screenshot
}

func (a *fakeArtifacts) Replace(png []byte) (*models.Screenshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replaced = append(a.replaced, png)
	a.last = &models.Screenshot{
		Filename:  "screenshot-test.png",
		Path:      "/tmp/screenshot-test.png",
		CreatedAt: time.Now(),
	}
	return a.last, nil
}

func (a *fakeArtifacts) Latest() (*models.Screenshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testService(page *fakePage, store *fakeConfigStore, shots *fakeArtifacts) *Service {
	return NewService(page, store, shots, Options{
		DambaURL:          "https://damba.example",
		PageLoadTimeout:   50 * time.Millisecond,
		NetworkIdleWindow: 50 * time.Millisecond,
		SettleDelay:       time.Millisecond,
	}, testLogger())
}

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return "header." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func storageBlob(t *testing.T, alerts []models.Alert) string {
	t.Helper()
	data, err := json.Marshal(models.AlertsData{Alerts: alerts})
	if err != nil {
		t.Fatalf("marshal alerts: %v", err)
	}
	blob, err := json.Marshal(map[string]string{"alerts": string(data)})
	if err != nil {
		t.Fatalf("marshal blob: %v", err)
	}
	return string(blob)
}
