// Package config loads runtime configuration for the pnrwatch client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. PNRWATCH_* environment variables.
//  4. Short command-line flags, which override earlier values.
//
// Supported flags
//
//	-s string   base URL of the sync API
//	-g string   host:port of the gRPC health endpoint (empty: probe GET /health)
//	-d string   SQLite DSN of the local store (empty: in-memory)
//	-t string   bearer access token
//	-i int      online status check interval (seconds)
//	-w string   listen address of the view bridge
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "storage_dsn": "pnrwatch.db",
//	  "online_check_interval": "3s",
//	  "auto_resolve": "server-wins"
//	}
package config
