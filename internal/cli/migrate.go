package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/adapters/repository"
	"github.com/okian/rsvp/internal/config"
)

// MigrateOptions holds flags for the migrate commands.
type MigrateOptions struct {
	*RootOptions
	DatabaseURL string
}

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the guest table schema",
		Long: `Apply or roll back the embedded schema migrations.

The database URL comes from --database-url or the loaded configuration.

Example:
  rsvpd migrate up
  rsvpd migrate version --database-url postgres://localhost/rsvp`,
	}
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "PostgreSQL URL (defaults to database_url from config)")

	steps := []struct {
		use, short string
		run        func(*cobra.Command, *repository.Migrator) error
	}{
		{"up", "Apply all pending migrations", func(cmd *cobra.Command, mg *repository.Migrator) error {
			if err := mg.Up(); err != nil {
				return err
			}
			return printVersion(cmd, mg)
		}},
		{"down", "Roll back the latest migration", func(cmd *cobra.Command, mg *repository.Migrator) error {
			if err := mg.Down(); err != nil {
				return err
			}
			return printVersion(cmd, mg)
		}},
		{"version", "Print the applied migration version", printVersion},
	}

	for _, step := range steps {
		run := step.run
		cmd.AddCommand(&cobra.Command{
			Use:   step.use,
			Short: step.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := opts.databaseURL(cmd)
				if err != nil {
					return err
				}
				mg, err := repository.NewMigrator(url)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to open migrator", err)
				}
				defer func() { _ = mg.Close() }()
				if err := run(cmd, mg); err != nil {
					return WrapExitError(ExitFailure, "migrate "+cmd.Name()+" failed", err)
				}
				return nil
			},
		})
	}
	return cmd
}

func (o *MigrateOptions) databaseURL(cmd *cobra.Command) (string, error) {
	if o.DatabaseURL != "" {
		return o.DatabaseURL, nil
	}
	cfg, err := config.Load(commandContext(cmd))
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg.DatabaseURL, nil
}

func printVersion(cmd *cobra.Command, mg *repository.Migrator) error {
	v, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
	return err
}
