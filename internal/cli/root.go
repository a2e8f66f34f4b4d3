// Package cli wires the rsvpd commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/config"
	"github.com/okian/rsvp/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	ConfigFile string
}

// NewRootCommand creates the root command for rsvpd.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rsvpd",
		Short: "rsvpd - wedding RSVP service",
		Long: `rsvpd stores RSVP form submissions in PostgreSQL, emails the guest and
the organizers, and serves a read-only admin API with a live feed.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.ConfigFile != "" {
				if err := os.Setenv(config.EnvConfigFile, opts.ConfigFile); err != nil {
					return fmt.Errorf("set %s: %w", config.EnvConfigFile, err)
				}
			}
			if err := logger.Init(); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize logging", err)
			}
			if opts.Verbose {
				_ = logger.SetLevelString("debug")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file (overrides "+config.EnvConfigFile+")")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand(opts))
	cmd.AddCommand(NewSmokeCommand(opts))

	return cmd
}
