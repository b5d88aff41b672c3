package config

import (
	"testing"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, int64(5<<20), c.Capacity)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 3*time.Second, c.NetworkTimeout)
	assert.Equal(t, 24*time.Hour, c.QueueRetention)
	assert.Empty(t, c.StorageDSN)
	require.NoError(t, c.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"server_url":            "http://json:1",
		"storage_dsn":           "json.db",
		"online_check_interval": "10s",
		"auto_resolve":          "merge",
		"views_origins":         []string{"https://json.test"},
	})
	t.Setenv("PNRWATCH_STORAGE_DSN", "env.db")
	t.Setenv("PNRWATCH_VIEWS_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("PNRWATCH_SYNC_INTERVAL", "30s")

	cfg, err := Load([]string{"-c", path, "-s", "http://flag:2", "track", "2455423890"})
	require.NoError(t, err)

	assert.Equal(t, "http://flag:2", cfg.ServerURL, "flag beats json")
	assert.Equal(t, "env.db", cfg.StorageDSN, "env beats json")
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval, "json kept without -i")
	assert.Equal(t, models.StrategyMerge, cfg.Strategy())
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.ViewsOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "relative server url", args: []string{"-s", "/api"}},
		{name: "bad strategy", env: map[string]string{"PNRWATCH_AUTO_RESOLVE": "coin-flip"}},
		{name: "bad env duration", env: map[string]string{"PNRWATCH_SYNC_INTERVAL": "soon"}},
		{name: "bad interval flag", args: []string{"-i", "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseFlags(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	require.NoError(t, parseFlags(cfg, []string{"-d", "vault.db", "-i", "7", "--unrelated", "x"}))
	assert.Equal(t, "vault.db", cfg.StorageDSN)
	assert.Equal(t, 7*time.Second, cfg.OnlineCheckInterval)
}
