package main

import (
	"context"
	"os"

	"github.com/okian/rsvp/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		// Use os.Stderr since the logger may not be initialized yet
		os.Stderr.WriteString("rsvpd: " + err.Error() + "\n")
		os.Exit(cli.GetExitCode(err))
	}
}
