// Package credstore persists per-source credentials and enabled flags.
//
// SQLite suits headless installs and the OS keyring suits desktops; Memory
// keeps nothing across restarts. Both store the credential map as a JSON blob keyed by source
// id and report missing ids as apperr.ErrNotFound.
package credstore

import (
	"context"

	"github.com/starford/shelfcheck/internal/source"
)

// Record is the stored state of one source.
type Record struct {
	Credentials source.Credentials `json:"credentials"`
	Enabled     bool               `json:"enabled"`
}

// Store defines credential persistence. Consumers should depend on this
// interface rather than a concrete backend.
type Store interface {
	Get(ctx context.Context, id string) (Record, error)
	Set(ctx context.Context, id string, creds source.Credentials, enabled bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Verify backends satisfy Store at compile time.
var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Keyring)(nil)
)
