package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/flagx"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
)

// JsonConfig is the JSON shape of a server config file. Durations use
// timex.Duration so both "1h" and integer nanoseconds parse. Absent keys
// leave the current value untouched.
type JsonConfig struct {
	HTTPAddr                    *string         `json:"http_addr"`
	GRPCAddr                    *string         `json:"grpc_addr"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	LogLevel                    *string         `json:"log_level"`
}

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

	if jc.HTTPAddr != nil {
		cfg.HTTPAddr = *jc.HTTPAddr
	}
	if jc.GRPCAddr != nil {
		cfg.GRPCAddr = *jc.GRPCAddr
	}
	if jc.DatabaseDSN != nil {
		cfg.DatabaseDSN = *jc.DatabaseDSN
	}
	if jc.SecretKey != nil {
		cfg.SecretKey = *jc.SecretKey
	}
	if jc.AccessTokenValidityDuration != nil {
		cfg.AccessTokenValidityDuration = jc.AccessTokenValidityDuration.Duration
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
	return nil
}
