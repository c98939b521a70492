package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// App captures the metadata for a registered provider application.
type App struct {
	Name         string
	Owner        [20]byte
	HashedName   [32]byte
	RegisteredAt uint64
}

const (
	nameMinLength = 2
	nameMaxLength = 32
)

var (
	namePattern = regexp.MustCompile(`^[a-z0-9._-]+$`)
	// ErrInvalidName is returned when the supplied application name does not
	// satisfy the naming constraints.
	ErrInvalidName = errors.New("registry: invalid application name")
	// ErrNameTaken is returned when the name is already owned by another
	// identity.
	ErrNameTaken = errors.New("registry: application already registered")
	// ErrAppNotFound marks lookups for names that were never registered.
	ErrAppNotFound = errors.New("registry: application not found")
	// ErrNotOwner marks ownership transfers attempted by anyone other than
	// the current owner.
	ErrNotOwner = errors.New("registry: caller does not own application")
)

// NormalizeName lowercases and validates the supplied application name.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	length := len(lower)
	if length < nameMinLength || length > nameMaxLength {
		return "", fmt.Errorf("%w: must be between %d and %d characters", ErrInvalidName, nameMinLength, nameMaxLength)
	}
	if !namePattern.MatchString(lower) {
		return "", fmt.Errorf("%w: allowed characters are [a-z0-9._-]", ErrInvalidName)
	}
	return lower, nil
}

// Clone returns a copy of the app record.
func (a *App) Clone() *App {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
