// Package guest remembers the display name an unauthenticated user picked
// for anonymous sends. The name lives for the session only.
package guest

import (
	"strings"
	"unicode/utf8"

	"github.com/bazaarhq/inbox/internal/apperr"
	"github.com/bazaarhq/inbox/internal/localstate"
	"go.uber.org/zap"
)

// MaxNameLength is the longest accepted name, in characters, after trimming.
const MaxNameLength = 50

const storageKey = "guest_name"

// ErrNameRequired means a name must be confirmed before an anonymous send.
var ErrNameRequired = apperr.FailedPrecondition("guest name required")

// Resolver hands out the session's guest name.
type Resolver struct {
	value *localstate.Value[string]
}

// NewResolver keeps the name in backend, which should be session scoped.
func NewResolver(backend localstate.Backend, logger *zap.Logger) *Resolver {
	return &Resolver{value: localstate.NewValue[string](backend, storageKey, logger)}
}

// Resolve returns the confirmed name, or ErrNameRequired when the user must
// be prompted. An unreadable or invalid stored name also asks for a prompt.
func (r *Resolver) Resolve() (string, error) {
	name, ok := r.value.Get()
	if !ok {
		return "", ErrNameRequired
	}
	if _, err := ValidateName(name); err != nil {
		return "", ErrNameRequired
	}
	return name, nil
}

// Confirm validates name and keeps its trimmed form for the session.
func (r *Resolver) Confirm(name string) (string, error) {
	clean, err := ValidateName(name)
	if err != nil {
		return "", err
	}
	if err := r.value.Set(clean); err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "store guest name", err)
	}
	return clean, nil
}

// Forget drops the session name.
func (r *Resolver) Forget() error {
	return r.value.Clear()
}

// ValidateName trims name and checks it is 1 to MaxNameLength characters.
func ValidateName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", apperr.Validation("guest_name", "must not be empty")
	}
	if utf8.RuneCountInString(clean) > MaxNameLength {
		return "", apperr.Validation("guest_name", "must be at most 50 characters")
	}
	return clean, nil
}
