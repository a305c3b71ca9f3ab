package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"hoodgram/internal/app"
	"hoodgram/internal/auth"
	"hoodgram/internal/authstate"
	"hoodgram/internal/config"
	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

// withShell opens a shell on the saved session, runs fn, settles and saves.
func withShell(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, s *shell) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	path := flags.sessionFile
	if path == "" {
		path = defaultSessionPath(cfg)
	}

	s, err := openShell(ctx, cmd.OutOrStdout(), shellOptions{path: flags.path, store: &sessionFile{path: path}})
	if err != nil {
		return err
	}
	defer s.close()

	if err := fn(ctx, s); err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	return s.persist()
}

func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in and where the client is",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if err := s.settle(ctx); err != nil {
					return err
				}
				s.printStatus()
				return nil
			})
		},
	}
}

func newSignUpCommand(flags *rootFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "sign-up",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				res, err := s.ctrl.SignUp(ctx, forms.SignUp{Email: email, Password: password})
				if err != nil {
					return err
				}
				if res.Session == nil {
					fmt.Fprintf(s.out, "Check %s for a confirmation link, then run: confirm <code>\n", res.User.Email)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (at least 8 characters)")
	return cmd
}

func newSignInCommand(flags *rootFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "sign-in",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if _, err := s.ctrl.SignIn(ctx, forms.SignIn{Email: email, Password: password}); err != nil {
					return err
				}
				if err := s.settle(ctx); err != nil {
					return err
				}
				s.printStatus()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func newConfirmCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <code|link>",
		Short: "Redeem a confirmation or OAuth code, as the callback page does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if _, err := s.app.Auth.ExchangeCodeForSession(ctx, codeFromArg(args[0])); err != nil {
					return err
				}
				if err := s.settle(ctx); err != nil {
					return err
				}
				s.printStatus()
				return nil
			})
		},
	}
}

// codeFromArg accepts a bare code or a full callback link.
func codeFromArg(arg string) string {
	if u, err := url.Parse(arg); err == nil && u.Query().Get("code") != "" {
		return u.Query().Get("code")
	}
	return arg
}

func newOAuthCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "oauth [provider]",
		Short: "Print the consent URL for an OAuth provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := "google"
			if len(args) == 1 {
				provider = args[0]
			}
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if _, err := s.ctrl.SignInWithOAuth(ctx, provider, s.cfg.CallbackURL()); err != nil {
					return err
				}
				fmt.Fprintln(s.out, "Open the URL above, then run: confirm <link you were sent back to>")
				return nil
			})
		},
	}
}

func newCompleteProfileCommand(flags *rootFlags) *cobra.Command {
	var name, username string
	cmd := &cobra.Command{
		Use:   "complete-profile",
		Short: "Choose a display name and username",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if _, err := s.ctrl.CompleteProfile(ctx, forms.CompleteProfile{Name: name, Username: username}); err != nil {
					return err
				}
				if err := s.settle(ctx); err != nil {
					return err
				}
				s.printStatus()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (2 to 50 characters)")
	cmd.Flags().StringVar(&username, "username", "", "username (3 to 20 of a-z, 0-9, _ and .)")
	return cmd
}

func newResendCommand(flags *rootFlags) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Send the confirmation email again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if err := s.ctrl.ResendConfirmation(ctx, email); err != nil {
					return err
				}
				fmt.Fprintln(s.out, "Confirmation email resent.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address used at sign-up")
	return cmd
}

func newSignOutCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sign-out",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withShell(cmd, flags, func(ctx context.Context, s *shell) error {
				if err := s.ctrl.SignOut(ctx); err != nil {
					return err
				}
				if err := s.settle(ctx); err != nil {
					return err
				}
				s.printStatus()
				return nil
			})
		},
	}
}

// newDemoCommand walks a new account through every flow against an
// in-memory store, without touching the session file.
func newDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run sign-up, confirmation, profile completion and sign-out in memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd)
		},
	}
}

func runDemo(ctx context.Context, cmd *cobra.Command) error {
	outbox := &auth.OutboxMailer{}
	s, err := openShell(ctx, cmd.OutOrStdout(), shellOptions{
		path: "/sign-up",
		configure: func(cfg *config.Config) {
			cfg.DataStore = "memory"
			cfg.RedisURL = ""
			cfg.KafkaBrokers = nil
			cfg.AutoConfirm = false
		},
		appOpts: []app.Option{app.WithMailer(outbox)},
	})
	if err != nil {
		return err
	}
	defer s.close()

	const email, password = "demo@hoodgram.local", "hoodgram-demo"
	step := func(title string) { fmt.Fprintf(s.out, "\n# %s\n", title) }

	step("sign up " + email)
	if _, err := s.ctrl.SignUp(ctx, forms.SignUp{Email: email, Password: password}); err != nil {
		return err
	}

	step("follow the confirmation link")
	msg, ok := outbox.Last(email)
	if !ok {
		return errors.New("no confirmation email was sent")
	}
	fmt.Fprintf(s.out, "link: %s\n", msg.Link)
	if _, err := s.app.Auth.ExchangeCodeForSession(ctx, codeFromArg(msg.Link)); err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	s.printStatus()

	step("complete the profile")
	if _, err := s.ctrl.CompleteProfile(ctx, forms.CompleteProfile{Name: "Demo Neighbour", Username: "demo"}); err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	s.printStatus()

	step("sign out")
	if err := s.ctrl.SignOut(ctx); err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	s.printStatus()
	return nil
}

// describeError renders provider and validation errors the way the forms show them.
func describeError(err error) string {
	var validationErr *forms.ValidationError
	var providerErr *auth.Error
	switch {
	case errors.As(err, &validationErr):
		fields := make([]string, 0, len(validationErr.Fields))
		for field, msg := range validationErr.Fields {
			fields = append(fields, fmt.Sprintf("  %s: %s", field, msg))
		}
		sort.Strings(fields)
		return "invalid input:\n" + strings.Join(fields, "\n")
	case errors.As(err, &providerErr):
		return providerErr.Message
	case errors.Is(err, profiles.ErrUsernameTaken):
		return "Username is already taken."
	case errors.Is(err, authstate.ErrNotAuthenticated):
		return "You need to sign in first."
	default:
		return "error: " + err.Error()
	}
}
