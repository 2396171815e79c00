// Package apperr defines the error taxonomy shared by the registry, adapters
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConfig        = errors.New("invalid configuration")
	ErrConnection    = errors.New("connection failed")
)

// ConfigError reports credentials that failed validation. It matches
// ErrConfig under errors.Is.
type ConfigError struct {
	Source string
	Errors []string
}

func (e *ConfigError) Error() string {
	msg := strings.Join(e.Errors, "; ")
	if msg == "" {
		msg = "invalid credentials"
	}
	if e.Source == "" {
		return "config: " + msg
	}
	return fmt.Sprintf("config %s: %s", e.Source, msg)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ConnectionError wraps a network, auth or I/O failure talking to a backend.
// It matches ErrConnection under errors.Is.
type ConnectionError struct {
	Source string
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Source, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// NotFound wraps ErrNotFound with the kind and id of the missing thing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
