package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

// HashPasswordOptions holds flags for the hash-password command.
type HashPasswordOptions struct {
	*RootOptions
	User string
	Cost int
}

// NewHashPasswordCommand creates the hash-password command.
func NewHashPasswordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashPasswordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for an admin_users entry",
		Long: `Print a bcrypt hash for the admin routes. Without an argument the
password is read from the first line of stdin.

Example:
  rsvpd hash-password --user kristen 'correct horse'
  echo 'correct horse' | rsvpd hash-password --user kristen`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashPassword(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "prefix the output with user: for admin_users")
	cmd.Flags().IntVar(&opts.Cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	return cmd
}

func runHashPassword(cmd *cobra.Command, opts *HashPasswordOptions, args []string) error {
	if opts.Cost < bcrypt.MinCost || opts.Cost > bcrypt.MaxCost {
		return NewExitError(ExitCommandError, fmt.Sprintf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if strings.Contains(opts.User, ":") {
		return NewExitError(ExitCommandError, "user must not contain ':'")
	}

	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return WrapExitError(ExitCommandError, "failed to read password from stdin", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return NewExitError(ExitCommandError, "password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), opts.Cost)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash password", err)
	}

	out := string(hash)
	if opts.User != "" {
		out = opts.User + ":" + out
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}
