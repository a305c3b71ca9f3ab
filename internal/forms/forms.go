// Package forms declares the input schemas of the auth flows and validates
// them into per-field messages.
package forms

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("invalid input")

var handlePattern = regexp.MustCompile(`^[a-z0-9_.]+$`)

// SignUp is the sign-up form.
type SignUp struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SignIn is the sign-in form.
type SignIn struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// CompleteProfile is the onboarding form filled after the first sign-in.
type CompleteProfile struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Username string `json:"username" validate:"required,min=3,max=20,handle"`
}

// Resend asks for another confirmation email.
type Resend struct {
	Email string `json:"email" validate:"required,email"`
}

// InitialProfile is the body of the profile bootstrap route.
type InitialProfile struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required"`
	Name   string `json:"name"`
	Image  string `json:"image"`
}

// FieldErrors maps a form field (by its json name) to a message.
type FieldErrors map[string]string

// ValidationError carries every failing field of one form.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

var messages = map[string]string{
	"email.email":       "Invalid email",
	"password.min":      "Password must be at least 8 characters.",
	"name.min":          "Name must be at least 2 characters.",
	"name.max":          "Name must be less than 50 characters.",
	"username.min":      "Username must be at least 3 characters.",
	"username.max":      "Username must be less than 20 characters.",
	"username.handle":   "Username can only contain lowercase letters, numbers, underscores, and periods.",
	"userId.required":   "User ID and email are required.",
	"email.required":    "Email is required.",
	"password.required": "Password is required.",
}

// Validator validates the form structs of this package.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the custom rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register handle validation: %v", err))
	}
	return &Validator{validate: v}
}

// Validate checks form after trimming surrounding whitespace from its string fields.
// Failures are returned as *ValidationError.
func (v *Validator) Validate(form any) error {
	trimStrings(form)
	if err := v.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		out := &ValidationError{Fields: make(FieldErrors, len(fieldErrs))}
		for _, fe := range fieldErrs {
			if _, seen := out.Fields[fe.Field()]; seen {
				continue
			}
			out.Fields[fe.Field()] = message(fe)
		}
		return out
	}
	return nil
}

func message(fe validator.FieldError) string {
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if fe.Tag() == "required" {
		return fmt.Sprintf("%s is required.", fe.Field())
	}
	return fmt.Sprintf("failed on '%s' validation", fe.Tag())
}

// Passwords are left untouched; only identifiers are trimmed.
func trimStrings(form any) {
	switch f := form.(type) {
	case *SignUp:
		f.Email = strings.TrimSpace(f.Email)
	case *SignIn:
		f.Email = strings.TrimSpace(f.Email)
	case *CompleteProfile:
		f.Name = strings.TrimSpace(f.Name)
		f.Username = strings.TrimSpace(f.Username)
	case *Resend:
		f.Email = strings.TrimSpace(f.Email)
	case *InitialProfile:
		f.UserID = strings.TrimSpace(f.UserID)
		f.Email = strings.TrimSpace(f.Email)
		f.Name = strings.TrimSpace(f.Name)
		f.Image = strings.TrimSpace(f.Image)
	}
}
