package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrNodeNotFound       = errors.New("flow node not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrBackendTimeout     = errors.New("backend timeout")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrGraphStructural    = errors.New("structural graph error")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
