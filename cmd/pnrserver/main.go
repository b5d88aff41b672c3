package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/auth"
	"github.com/curiousoddesy/PNR-Watch-sub005/internal/server/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "pnrserver:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pnrserver",
		Short: "Sync server for pnrwatch clients",
		Long: `pnrserver stores versioned PNR records and preferences per user.

Configuration comes from defaults, an optional JSON file (-c), PNRSERVER_*
environment variables and the flags -a (HTTP address), -g (gRPC address),
-d (database DSN, "memory" for in-memory storage), -s (JWT secret) and
-t (token validity in minutes).`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args)
			if err != nil {
				return err
			}
			app, err := server.NewApp(cmd.Context(), cfg, os.Stdout)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.AddCommand(newTokenCommand())
	return cmd
}

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user> [flags]",
		Short: "Mint an access token for a user",
		Long: `Mint an access token signed with the configured secret. The same
configuration sources as the server apply, so -s and -t override the secret
and the validity.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || strings.HasPrefix(args[0], "-") {
				return fmt.Errorf("usage: pnrserver token <user> [flags]")
			}
			cfg, err := config.Load(args[1:])
			if err != nil {
				return err
			}
			tok, err := auth.GenerateToken(args[0], []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
