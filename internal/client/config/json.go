package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/flagx"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from zero so a partial file only overrides
// what it names.
type JsonConfig struct {
	ServerURL           *string         `json:"server_url"`
	HealthAddr          *string         `json:"health_addr"`
	AccessToken         *string         `json:"access_token"`
	StorageDSN          *string         `json:"storage_dsn"`
	Capacity            *int64          `json:"capacity"`
	NetworkTimeout      *timex.Duration `json:"network_timeout"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	QueueRetention      *timex.Duration `json:"queue_retention"`
	MaxAttempts         *int            `json:"max_attempts"`
	BackoffInitial      *timex.Duration `json:"backoff_initial"`
	BackoffMax          *timex.Duration `json:"backoff_max"`
	AutoResolve         *string         `json:"auto_resolve"`
	RoutesFile          *string         `json:"routes_file"`
	ViewsAddr           *string         `json:"views_addr"`
	LogLevel            *string         `json:"log_level"`
	ViewsOrigins        []string        `json:"views_origins"`
}

// parseJson overlays cfg with the JSON file named by -c or -config. Without
// either flag it does nothing.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.HealthAddr, jc.HealthAddr)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.StorageDSN, jc.StorageDSN)
	if jc.Capacity != nil {
		cfg.Capacity = *jc.Capacity
	}
	setDuration(&cfg.NetworkTimeout, jc.NetworkTimeout)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.SyncInterval, jc.SyncInterval)
	setDuration(&cfg.QueueRetention, jc.QueueRetention)
	if jc.MaxAttempts != nil {
		cfg.MaxAttempts = *jc.MaxAttempts
	}
	setDuration(&cfg.BackoffInitial, jc.BackoffInitial)
	setDuration(&cfg.BackoffMax, jc.BackoffMax)
	setString(&cfg.AutoResolve, jc.AutoResolve)
	setString(&cfg.RoutesFile, jc.RoutesFile)
	setString(&cfg.ViewsAddr, jc.ViewsAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.ViewsOrigins != nil {
		cfg.ViewsOrigins = jc.ViewsOrigins
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
