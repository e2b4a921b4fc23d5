package damba

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkarpov/mapwatch/pkg/models"
)

// ErrNotAuthenticated is returned when an operation needs a valid map-service
// session and there is none
var ErrNotAuthenticated = errors.New("not authenticated to map service")

// Page is the headless browser capability the service drives
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)
	Restart(ctx context.Context) error
}

// ConfigStore persists the credential and the alerts snapshot
type ConfigStore interface {
	GetAppConfig(ctx context.Context) (*models.AppConfig, error)
	SaveDambaToken(ctx context.Context, token string, expiresAt *int64) error
	SaveAlertsSnapshot(ctx context.Context, snapshot string) error
}

// ArtifactStore holds the single retained screenshot
type ArtifactStore interface {
	Replace(png []byte) (*models.Screenshot, error)
	Latest() (*models.Screenshot, error)
}

// Options tunes the page-stability wait and the map service location
type Options struct {
	DambaURL          string
	PageLoadTimeout   time.Duration // readyState wait cap
	NetworkIdleWindow time.Duration // resource-count idle wait cap
	SettleDelay       time.Duration // fixed delay after the page looks stable
}

// Service owns every interaction with the map service page: authentication,
// screenshot capture and alert diffing. A single mutex serializes all
// page-touching operations since they share one browser tab; storage-only
// calls stay unserialized.
type Service struct {
	page   Page
	store  ConfigStore
	shots  ArtifactStore
	opts   Options
	logger *slog.Logger

	pageMu        sync.Mutex
	authenticated atomic.Bool

	now func() time.Time
}

// NewService creates the map-service engine
func NewService(page Page, store ConfigStore, shots ArtifactStore, opts Options, logger *slog.Logger) *Service {
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 10 * time.Second
	}
	if opts.NetworkIdleWindow <= 0 {
		opts.NetworkIdleWindow = 3 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 1500 * time.Millisecond
	}
	return &Service{
		page:   page,
		store:  store,
		shots:  shots,
		opts:   opts,
		logger: logger.With("component", "damba"),
		now:    time.Now,
	}
}

// LastScreenshot returns the retained artifact, or nil if none exists
func (s *Service) LastScreenshot() (*models.Screenshot, error) {
	return s.shots.Latest()
}
