package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/router"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/storage"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/syncqueue"
)

// Config holds runtime settings for the pnrwatch client.
type Config struct {
	ServerURL   string `env:"PNRWATCH_SERVER_URL"`
	HealthAddr  string `env:"PNRWATCH_HEALTH_ADDR"`
	AccessToken string `env:"PNRWATCH_TOKEN"`

	StorageDSN string `env:"PNRWATCH_STORAGE_DSN"`
	Capacity   int64  `env:"PNRWATCH_CAPACITY"`

	NetworkTimeout      time.Duration `env:"PNRWATCH_NETWORK_TIMEOUT"`
	OnlineCheckInterval time.Duration `env:"PNRWATCH_ONLINE_CHECK_INTERVAL"`
	SyncInterval        time.Duration `env:"PNRWATCH_SYNC_INTERVAL"`

	QueueRetention time.Duration `env:"PNRWATCH_QUEUE_RETENTION"`
	MaxAttempts    int           `env:"PNRWATCH_MAX_ATTEMPTS"`
	BackoffInitial time.Duration `env:"PNRWATCH_BACKOFF_INITIAL"`
	BackoffMax     time.Duration `env:"PNRWATCH_BACKOFF_MAX"`

	// AutoResolve is the conflict strategy applied on detection; empty
	// leaves conflicts pending for the user.
	AutoResolve string `env:"PNRWATCH_AUTO_RESOLVE"`

	RoutesFile string `env:"PNRWATCH_ROUTES_FILE"`
	ViewsAddr  string `env:"PNRWATCH_VIEWS_ADDR"`
	LogLevel   string `env:"PNRWATCH_LOG_LEVEL"`

	// ViewsOrigins lists browser origins besides the bridge's own that may
	// open the view socket.
	ViewsOrigins []string `env:"PNRWATCH_VIEWS_ORIGINS" envSeparator:","`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = ""
	c.AccessToken = ""
	c.StorageDSN = ""
	c.Capacity = storage.DefaultCapacity
	c.NetworkTimeout = router.DefaultNetworkTimeout
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = time.Minute
	c.QueueRetention = syncqueue.DefaultRetention
	c.MaxAttempts = syncqueue.DefaultMaxAttempts
	c.BackoffInitial = syncqueue.DefaultInitialBackoff
	c.BackoffMax = syncqueue.DefaultMaxBackoff
	c.AutoResolve = ""
	c.RoutesFile = ""
	c.ViewsAddr = "127.0.0.1:8081"
	c.ViewsOrigins = nil
	c.LogLevel = "info"
}

// Validate rejects settings the client cannot start with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server url %q must be absolute", c.ServerURL)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.OnlineCheckInterval <= 0 || c.SyncInterval <= 0 {
		return fmt.Errorf("check and sync intervals must be positive")
	}
	if c.AutoResolve != "" {
		if _, err := models.ParseStrategy(c.AutoResolve); err != nil {
			return err
		}
	}
	return nil
}

// Strategy returns the automatic conflict strategy, or "" for manual.
func (c *Config) Strategy() models.Strategy {
	return models.Strategy(c.AutoResolve)
}

// Load constructs a Config, applies defaults, then overlays values from
// JSON (if given), the environment and command-line flags. Later sources
// take precedence over earlier ones. args excludes the program name.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
