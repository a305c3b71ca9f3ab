package forms

import (
	"errors"
	"strings"
	"testing"
)

func fieldErrors(t *testing.T, err error) FieldErrors {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected validation error to wrap ErrInvalidInput")
	}
	return vErr.Fields
}

func TestValidateSignUp(t *testing.T) {
	v := NewValidator()

	form := &SignUp{Email: "  a@b.com ", Password: "longenough"}
	if err := v.Validate(form); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}
	if form.Email != "a@b.com" {
		t.Fatalf("expected trimmed email, got %q", form.Email)
	}

	fields := fieldErrors(t, v.Validate(&SignUp{Email: "not-an-email", Password: "short"}))
	if fields["email"] != "Invalid email" {
		t.Fatalf("unexpected email message %q", fields["email"])
	}
	if fields["password"] != "Password must be at least 8 characters." {
		t.Fatalf("unexpected password message %q", fields["password"])
	}
}

func TestValidateSignInRequired(t *testing.T) {
	v := NewValidator()
	fields := fieldErrors(t, v.Validate(&SignIn{}))
	if fields["email"] != "Email is required." || fields["password"] != "Password is required." {
		t.Fatalf("unexpected messages %+v", fields)
	}
}

func TestValidateCompleteProfile(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(&CompleteProfile{Name: "Jo", Username: "jo_1"}); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}
	if err := v.Validate(&CompleteProfile{Name: "Jo", Username: "jo.doe_2"}); err != nil {
		t.Fatalf("expected periods to be accepted, got %v", err)
	}

	cases := []struct {
		form  CompleteProfile
		field string
		msg   string
	}{
		{CompleteProfile{Name: "J", Username: "jo_1"}, "name", "Name must be at least 2 characters."},
		{CompleteProfile{Name: strings.Repeat("a", 51), Username: "jo_1"}, "name", "Name must be less than 50 characters."},
		{CompleteProfile{Name: "Jo", Username: "jo"}, "username", "Username must be at least 3 characters."},
		{CompleteProfile{Name: "Jo", Username: strings.Repeat("a", 21)}, "username", "Username must be less than 20 characters."},
		{CompleteProfile{Name: "Jo", Username: "Jo_1"}, "username", "Username can only contain lowercase letters, numbers, underscores, and periods."},
		{CompleteProfile{Name: "Jo", Username: "jo-1"}, "username", "Username can only contain lowercase letters, numbers, underscores, and periods."},
	}
	for _, tc := range cases {
		form := tc.form
		fields := fieldErrors(t, v.Validate(&form))
		if fields[tc.field] != tc.msg {
			t.Fatalf("expected %q for %s, got %q", tc.msg, tc.field, fields[tc.field])
		}
	}
}

func TestValidateInitialProfile(t *testing.T) {
	v := NewValidator()
	fields := fieldErrors(t, v.Validate(&InitialProfile{Email: "a@b.com"}))
	if fields["userId"] != "User ID and email are required." {
		t.Fatalf("unexpected userId message %q", fields["userId"])
	}
	if _, ok := fields["email"]; ok {
		t.Fatalf("did not expect email error")
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: FieldErrors{"password": "b", "email": "a"}}
	if err.Error() != "email: a; password: b" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
