package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigErrorIs(t *testing.T) {
	err := fmt.Errorf("enable: %w", &ConfigError{Source: "plex", Errors: []string{"Invalid Server URL"}})
	if !errors.Is(err, ErrConfig) {
		t.Fatal("expected errors.Is(err, ErrConfig)")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Errors[0] != "Invalid Server URL" {
		t.Fatalf("errors.As = %v", ce)
	}
	if got := ce.Error(); got != "config plex: Invalid Server URL" {
		t.Errorf("Error() = %q", got)
	}
}

func TestConnectionErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := &ConnectionError{Source: "jellyfin", Op: "search", Err: inner}
	if !errors.Is(err, ErrConnection) {
		t.Error("expected ErrConnection match")
	}
	if !errors.Is(err, inner) {
		t.Error("expected inner error match")
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("source", "unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected ErrNotFound")
	}
	if err.Error() != `source "unknown": not found` {
		t.Errorf("Error() = %q", err.Error())
	}
}
