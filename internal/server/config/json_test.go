package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"grpc_addr":                      "",
		"secret_key":                     "from-json",
		"access_token_validity_duration": "90m",
	})

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseJson(cfg, []string{"-c", path}))

	assert.Empty(t, cfg.GRPCAddr, "explicit empty disables gRPC")
	assert.Equal(t, "from-json", cfg.SecretKey)
	assert.Equal(t, 90*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, ":8080", cfg.HTTPAddr)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	assert.Error(t, parseJson(cfg, []string{"-c", bad}))
}
