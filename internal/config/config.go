package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Scraper modes.
const (
	ModeHistory = "history"
	ModeLive    = "live"
	ModeHybrid  = "hybrid"
)

// ErrNoChannels indicates no channels were configured.
var ErrNoChannels = errors.New("no channels configured")

// ErrInvalidMode indicates an unknown scraper mode.
var ErrInvalidMode = errors.New("invalid scraper mode")

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	// Telegram
	TGAPIID       int    `env:"TG_API_ID,required"`
	TGAPIHash     string `env:"TG_API_HASH,required"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`

	// Channels to scrape: invite link or username mapped to a human label
	// used as the product category, e.g.
	// CHANNELS=https://t.me/+abc123=Home Goods,https://t.me/+def456=Toys
	Channels map[string]string `env:"CHANNELS" envSeparator:"," envKeyValSeparator:"="`

	// Backend sink
	BackendURL   string `env:"BACKEND_URL"`
	BackendToken string `env:"BACKEND_TOKEN"`
	TenantID     string `env:"TENANT_ID" envDefault:"7"`

	// AI extraction
	LLMAPIKey  string        `env:"LLM_API_KEY"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"gemini-1.5-flash-latest"`
	LLMBaseURL string        `env:"LLM_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	AIEnabled  bool          `env:"AI_EXTRACTION_ENABLED" envDefault:"true"`

	// Scraping
	Mode      string `env:"SCRAPER_MODE" envDefault:"hybrid"`
	StopDate  string `env:"STOP_DATE"`
	BatchSize int    `env:"BATCH_SIZE" envDefault:"100"`

	// Media grouping
	GroupQuietWindow time.Duration `env:"GROUP_QUIET_WINDOW" envDefault:"2s"`
	GroupMaxSize     int           `env:"GROUP_MAX_SIZE" envDefault:"10"`

	// Rate limiting and retries
	RateLimitRPS int `env:"RATE_LIMIT_RPS" envDefault:"1"`
	MaxRetries   int `env:"MAX_RETRIES" envDefault:"3"`

	// Paths
	MediaDir     string `env:"MEDIA_DIR" envDefault:"downloaded_images"`
	ProductsFile string `env:"PRODUCTS_FILE" envDefault:"products.json"`
	OfflineFile  string `env:"OFFLINE_FILE" envDefault:"offline_products.json"`
	FailedFile   string `env:"FAILED_FILE" envDefault:"failed_products.json"`
	StatePath    string `env:"STATE_PATH" envDefault:"scraper_state.db"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the parts of the configuration that must abort the run
// before any channel processing begins.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}

	switch c.Mode {
	case ModeHistory, ModeLive, ModeHybrid:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	if _, err := c.StopTime(); err != nil {
		return err
	}

	return nil
}

// StopTime parses the optional backfill stop date. A zero time means the
// backfill is unbounded.
func (c *Config) StopTime() (time.Time, error) {
	if c.StopDate == "" {
		return time.Time{}, nil
	}

	t, err := dateparse.ParseIn(c.StopDate, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid STOP_DATE %q: %w", c.StopDate, err)
	}

	return t.UTC(), nil
}

// AIConfigured reports whether the AI extractor should be attempted at all.
func (c *Config) AIConfigured() bool {
	return c.AIEnabled && c.LLMAPIKey != ""
}
