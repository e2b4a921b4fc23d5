package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrNotStarted is returned when the browser session has not been launched
var ErrNotStarted = errors.New("browser session not started")

// Options configures the headless browser
type Options struct {
	Headless          bool
	NavigationTimeout time.Duration
	Width             int
	Height            int
}

// Session owns the single headless browser tab shared by the whole process.
// Callers hold higher-level locks around logical operations; Session only
// guards its own lifecycle state.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewSession creates a session; the browser is launched by Start
func NewSession(opts Options, logger *slog.Logger) *Session {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	return &Session{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}
}

// Start launches the browser and opens the tab
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.tabCtx != nil {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.NoSandbox,
		chromedp.WindowSize(s.opts.Width, s.opts.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the browser process to start now
	startCtx, cancel := context.WithTimeout(tabCtx, s.opts.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.allocCtx = allocCtx
	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel

	s.logger.Info("browser launched", "headless", s.opts.Headless)
	return nil
}

// Restart tears the browser down completely and launches a fresh one. Used
// for credential rotation: the map service ties its session storage to the
// browser context, so swapping the token in place is not supported.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	s.logger.Info("browser restarting")
	return s.startLocked(ctx)
}

// Close shuts the browser down
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
		s.tabCtx = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
		s.allocCtx = nil
	}
}

func (s *Session) tab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabCtx == nil {
		return nil, ErrNotStarted
	}
	return s.tabCtx, nil
}

// Navigate loads url and waits for the document to be ready
func (s *Session) Navigate(ctx context.Context, url string) error {
	tab, err := s.tab()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(tab, s.opts.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Evaluate runs a script in the page and unmarshals its JSON result into out.
// Pass nil to discard the result.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	tab, err := s.tab()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(tab, s.opts.NavigationTimeout)
	defer cancel()

	var action chromedp.Action
	if out != nil {
		action = chromedp.Evaluate(expr, out)
	} else {
		action = chromedp.Evaluate(expr, nil)
	}
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// Screenshot captures the full page as PNG
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	tab, err := s.tab()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(tab, s.opts.NavigationTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return buf, nil
}
