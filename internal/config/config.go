package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// HTTP API
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Map service
	DambaURL string `env:"DAMBA_URL" envDefault:"https://damba.live"`

	// Database
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"./data/mapwatch.db"`
	WhatsAppDBPath string `env:"WHATSAPP_DB_PATH" envDefault:"./data/whatsapp.db"`

	// Screenshots
	ScreenshotsDir string `env:"SCREENSHOTS_DIR" envDefault:"./screenshots"`

	// Browser
	BrowserHeadless   bool          `env:"BROWSER_HEADLESS" envDefault:"true"`
	NavigationTimeout time.Duration `env:"NAVIGATION_TIMEOUT" envDefault:"30s"`
	PageLoadTimeout   time.Duration `env:"PAGE_LOAD_TIMEOUT" envDefault:"10s"`
	NetworkIdleWindow time.Duration `env:"NETWORK_IDLE_WINDOW" envDefault:"3s"`
	SettleDelay       time.Duration `env:"SETTLE_DELAY" envDefault:"1500ms"`

	// Alert monitoring
	AlertCheckInterval time.Duration `env:"ALERT_CHECK_INTERVAL" envDefault:"5s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
	LogFile   string `env:"LOG_FILE"`                     // empty = stdout only
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.AlertCheckInterval < time.Second {
		return nil, fmt.Errorf("ALERT_CHECK_INTERVAL must be at least 1s, got %s", cfg.AlertCheckInterval)
	}

	return cfg, nil
}
