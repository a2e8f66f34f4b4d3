package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/smoke"
	"github.com/okian/rsvp/pkg/logger"
)

// EnvSmokePassword supplies the admin password without putting it on the
// command line.
const EnvSmokePassword = "RSVP_SMOKE_PASSWORD"

// Default smoke configuration constants.
const (
	defaultSmokeCount   = 100
	defaultSmokeTimeout = 10 * time.Second
	defaultSmokeRun     = 5 * time.Minute
)

// NewSmokeCommand creates the smoke command.
func NewSmokeCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := smoke.Config{}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Submit generated RSVPs to a running service and verify the totals",
		Long: `Submit generated RSVPs to a running service and, with admin credentials,
check that the stored total grew by the number of accepted submissions.

Run it only against a test deployment; the rows it creates are real.

Example:
  rsvpd smoke --url http://localhost:9080 --count 500
  RSVP_SMOKE_PASSWORD=secret rsvpd smoke --admin-user kristen`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.AdminPassword == "" {
				cfg.AdminPassword = os.Getenv(EnvSmokePassword)
			}
			cfg.Verbose = rootOpts.Verbose
			cfg.Logger = logger.Get()

			ctx, cancel := contextWithTimeout(cmd, defaultSmokeRun)
			defer cancel()

			stats, err := smoke.Run(ctx, cfg)
			if stats != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "submitted=%d successful=%d failed=%d verified=%t duration=%s\n",
					stats.Submitted, stats.Successful, stats.Failed, stats.Verified, stats.Duration.Round(time.Millisecond))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "smoke test failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	cmd.Flags().IntVar(&cfg.Count, "count", defaultSmokeCount, "number of RSVPs to submit")
	cmd.Flags().IntVar(&cfg.Workers, "workers", smoke.DefaultWorkers, "number of concurrent workers")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", defaultSmokeTimeout, "HTTP request timeout")
	cmd.Flags().StringVar(&cfg.AdminUser, "admin-user", "", "admin user for verification (skipped when empty)")
	cmd.Flags().StringVar(&cfg.AdminPassword, "admin-password", "", "admin password (or "+EnvSmokePassword+")")

	return cmd
}
