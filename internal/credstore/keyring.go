package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/source"
)

// indexUser is the keyring entry holding the JSON list of stored source ids;
// keyrings cannot enumerate entries portably.
const indexUser = "_sources"

// Keyring stores each record as a JSON blob in the OS keyring under the
// given service name.
type Keyring struct {
	service string
	mu      sync.Mutex
}

// NewKeyring creates a keyring-backed store.
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

func userFor(id string) string { return "source:" + id }

func (k *Keyring) Get(_ context.Context, id string) (Record, error) {
	blob, err := keyring.Get(k.service, userFor(id))
	if errors.Is(err, keyring.ErrNotFound) {
		return Record{}, apperr.NotFound("credentials", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("credstore: keyring get %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return Record{}, fmt.Errorf("credstore: decode %s: %w", id, err)
	}
	return r, nil
}

func (k *Keyring) Set(_ context.Context, id string, creds source.Credentials, enabled bool) error {
	if creds == nil {
		creds = source.Credentials{}
	}
	blob, err := json.Marshal(Record{Credentials: creds, Enabled: enabled})
	if err != nil {
		return fmt.Errorf("credstore: encode %s: %w", id, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Set(k.service, userFor(id), string(blob)); err != nil {
		return fmt.Errorf("credstore: keyring set %s: %w", id, err)
	}
	ids, err := k.ids()
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		return k.writeIDs(append(ids, id))
	}
	return nil
}

func (k *Keyring) Delete(_ context.Context, id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := keyring.Delete(k.service, userFor(id)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credstore: keyring delete %s: %w", id, err)
	}
	ids, err := k.ids()
	if err != nil {
		return err
	}
	if i := slices.Index(ids, id); i >= 0 {
		return k.writeIDs(slices.Delete(ids, i, i+1))
	}
	return nil
}

func (k *Keyring) List(_ context.Context) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids, err := k.ids()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// Close is a no-op; the keyring has no handle to release.
func (k *Keyring) Close() error { return nil }

func (k *Keyring) ids() ([]string, error) {
	blob, err := keyring.Get(k.service, indexUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: keyring index: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(blob), &ids); err != nil {
		return nil, fmt.Errorf("credstore: decode index: %w", err)
	}
	return ids, nil
}

func (k *Keyring) writeIDs(ids []string) error {
	blob, _ := json.Marshal(ids)
	if err := keyring.Set(k.service, indexUser, string(blob)); err != nil {
		return fmt.Errorf("credstore: keyring index: %w", err)
	}
	return nil
}
