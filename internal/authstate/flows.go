package authstate

import (
	"context"
	"errors"

	"hoodgram/internal/access"
	"hoodgram/internal/auth"
	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

const resendSignup = "signup"

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// SignUp registers the account and bootstraps its profile row. When the
// provider holds the session back until the email is confirmed the user is
// sent to the check-email page.
func (c *Controller) SignUp(ctx context.Context, form forms.SignUp) (auth.SignUpResult, error) {
	if err := c.validator.Validate(&form); err != nil {
		return auth.SignUpResult{}, err
	}

	res, err := c.provider.SignUp(ctx, form.Email, form.Password)
	if err != nil {
		return auth.SignUpResult{}, err
	}

	if _, _, err := c.profiles.CreateInitial(ctx, profiles.InitialInput{UserID: res.User.ID, Email: res.User.Email}); err != nil {
		c.logger.Error("bootstrap profile after sign-up", "user_id", res.User.ID, "error", err)
	}

	if res.Session == nil {
		c.nav.Navigate(access.CheckEmailURL(res.User.Email))
	}
	return res, nil
}

// SignIn authenticates with email and password. Routing follows from the
// SIGNED_IN event.
func (c *Controller) SignIn(ctx context.Context, form forms.SignIn) (*auth.Session, error) {
	if err := c.validator.Validate(&form); err != nil {
		return nil, err
	}
	return c.provider.SignInWithPassword(ctx, form.Email, form.Password)
}

// SignInWithOAuth sends the user to the provider's consent page.
func (c *Controller) SignInWithOAuth(ctx context.Context, provider, callbackURL string) (string, error) {
	consentURL, err := c.provider.SignInWithOAuth(ctx, provider, callbackURL)
	if err != nil {
		return "", err
	}
	c.nav.Navigate(consentURL)
	return consentURL, nil
}

// CompleteProfile stores name and username for the signed-in user and
// re-reconciles so the user leaves the completion page.
func (c *Controller) CompleteProfile(ctx context.Context, form forms.CompleteProfile) (profiles.Profile, error) {
	c.mu.RLock()
	user, session := c.user, c.session
	c.mu.RUnlock()

	if user == nil || session == nil {
		c.nav.Navigate(access.SignInPath)
		return profiles.Profile{}, ErrNotAuthenticated
	}
	if err := c.validator.Validate(&form); err != nil {
		return profiles.Profile{}, err
	}

	p, err := c.profiles.Complete(ctx, user.ID, profiles.Completion{Name: form.Name, Username: form.Username})
	if err != nil {
		return profiles.Profile{}, err
	}

	c.Deliver(auth.Event{Kind: auth.EventUserUpdated, Session: session})
	return p, nil
}

// SignOut ends the current session.
func (c *Controller) SignOut(ctx context.Context) error {
	session := c.Session()
	if session == nil || session.AccessToken == "" {
		c.Deliver(auth.Event{Kind: auth.EventSignedOut})
		return nil
	}
	return c.provider.SignOut(ctx, session.AccessToken)
}

// ResendConfirmation asks the provider to mail another confirmation link.
func (c *Controller) ResendConfirmation(ctx context.Context, email string) error {
	form := forms.Resend{Email: email}
	if err := c.validator.Validate(&form); err != nil {
		return err
	}
	return c.provider.Resend(ctx, resendSignup, form.Email)
}
