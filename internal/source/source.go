// Package source defines the contract every media library backend implements.
//
// An Adapter hides one backend (a media server API, a local directory tree, a
// mounted network share) behind the same seven methods so the registry and
// the aggregator never need to know which kind they are talking to. Each
// adapter owns a typed credential struct; Credentials is the untyped form
// used by the credential store and the wire.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Kind classifies an adapter by backend family.
type Kind string

// Adapter kinds.
const (
	KindAPI        Kind = "api"
	KindFilesystem Kind = "filesystem"
	KindNetwork    Kind = "network"
)

// InputKind hints how a credential field should be collected.
type InputKind string

// Credential input kinds.
const (
	InputText     InputKind = "text"
	InputURL      InputKind = "url"
	InputPassword InputKind = "password"
	InputPaths    InputKind = "paths"
	InputCheckbox InputKind = "checkbox"
)

// Field declares one credential the adapter needs.
type Field struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Input    InputKind `json:"inputKind"`
	Required bool      `json:"required"`
}

// Validation is the outcome of ValidateCredentials.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Movie is a library item returned by a successful match.
type Movie struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Year *int   `json:"year,omitempty"`
}

// CheckResult is the outcome of CheckMovie.
type CheckResult struct {
	Found bool   `json:"found"`
	Movie *Movie `json:"movie,omitempty"`
}

// Descriptor identifies a registered source.
type Descriptor struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	DisplayName string `json:"displayName"`
}

// Adapter is the capability set of a media library backend.
type Adapter interface {
	// Name returns a human-readable backend name.
	Name() string
	// Kind returns the backend family.
	Kind() Kind
	// RequiredFields declares the credential schema. It performs no I/O.
	RequiredFields() []Field
	// ValidateCredentials checks candidate credentials syntactically. It
	// performs no I/O.
	ValidateCredentials(c Credentials) Validation
	// Configure stores a normalized copy of c and invalidates any cache.
	// It returns a *apperr.ConfigError when c is invalid.
	Configure(c Credentials) error
	// TestConnection performs a minimal round trip. Failures are reported in
	// the result, never as a panic.
	TestConnection(ctx context.Context) ConnectionResult
	// CheckMovie searches the backend and picks the best fuzzy match. On
	// backend failure it returns CheckResult{Found: false} together with a
	// *apperr.ConnectionError describing what went wrong.
	CheckMovie(ctx context.Context, title string, year *int) (CheckResult, error)
}

// Credentials is the untyped credential map persisted per source id.
type Credentials map[string]any

// LogValue keeps credential values out of logs.
func (Credentials) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Decode converts c into the adapter's typed credential struct.
func Decode[T any](c Credentials) (T, error) {
	var out T
	if c == nil {
		return out, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return out, fmt.Errorf("source: encode credentials: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("source: decode credentials: %w", err)
	}
	return out, nil
}

// Encode converts a typed credential struct back into Credentials.
func Encode(v any) (Credentials, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("source: encode credentials: %w", err)
	}
	var out Credentials
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("source: decode credentials: %w", err)
	}
	return out, nil
}
