// Command shell is a terminal client for the Hoodgram auth flows. Each
// invocation restores the saved session, runs one operation through the auth
// state controller and saves where the user ended up.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	path        string
	sessionFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "hoodgram-shell",
		Short:         "Sign in to Hoodgram from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.path, "path", "", "page the client is on (defaults to the saved page)")
	root.PersistentFlags().StringVar(&flags.sessionFile, "session-file", "", "where the session is kept (defaults to SESSION_FILE or ~/.hoodgram/session.json)")

	root.AddCommand(
		newStatusCommand(flags),
		newSignUpCommand(flags),
		newSignInCommand(flags),
		newConfirmCommand(flags),
		newOAuthCommand(flags),
		newCompleteProfileCommand(flags),
		newResendCommand(flags),
		newSignOutCommand(flags),
		newDemoCommand(),
	)
	return root
}
