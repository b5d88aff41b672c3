package config

import (
	"flag"
	"io"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Arguments it does not know are filtered out first, so the same command
// line can be shared with the CLI's own flag parsing.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-s", "-g", "-d", "-t", "-i", "-w"})

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the sync API")
	fs.StringVar(&cfg.HealthAddr, "g", cfg.HealthAddr, "gRPC health endpoint")
	fs.StringVar(&cfg.StorageDSN, "d", cfg.StorageDSN, "SQLite DSN of the local store")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "bearer access token")
	fs.StringVar(&cfg.ViewsAddr, "w", cfg.ViewsAddr, "view bridge listen address")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		}
	})
	return nil
}
