// Package registry tracks the configured media sources, their credentials and
// which of them are active.
//
// A source becomes active only after its stored credentials have been applied
// to the adapter, so ActiveSources never yields a half-configured adapter.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/credstore"
	"github.com/starford/shelfcheck/internal/source"
)

// Event kinds passed to the notifier.
const (
	EventEnabled    = "source.enabled"
	EventDisabled   = "source.disabled"
	EventConfigured = "source.configured"
)

// Notifier receives registry events. It must not block.
type Notifier func(kind string, data map[string]string)

// Entry is an active source.
type Entry struct {
	ID      string
	Adapter source.Adapter
}

// Status describes a registered source.
type Status struct {
	source.Descriptor
	Active     bool           `json:"active"`
	Configured bool           `json:"configured"`
	Fields     []source.Field `json:"fields"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithNotifier sets the event callback.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notify = n }
}

// RefreshOnEnable makes EnableSource always re-read stored credentials, even
// when the adapter is already configured.
func RefreshOnEnable() Option {
	return func(r *Registry) { r.refreshOnEnable = true }
}

// AllowReplace makes every Register behave as if Replace() were passed.
func AllowReplace() Option {
	return func(r *Registry) { r.allowReplace = true }
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registration)

type registration struct {
	replace bool
	factory func() source.Adapter
}

// Replace lets Register overwrite an existing id. The replaced source keeps
// its position and becomes inactive.
func Replace() RegisterOption {
	return func(o *registration) { o.replace = true }
}

// Factory supplies fresh adapter instances, used by TestSource to try
// unsaved credentials without touching the live adapter.
func Factory(fn func() source.Adapter) RegisterOption {
	return func(o *registration) { o.factory = fn }
}

// Registry holds adapters in registration order.
//
// ops serializes mutations, which may perform store I/O. mu guards the maps
// for short critical sections so ActiveSources never waits on I/O.
type Registry struct {
	store           credstore.Store
	logger          *slog.Logger
	notify          Notifier
	refreshOnEnable bool
	allowReplace    bool

	ops sync.Mutex

	mu         sync.RWMutex
	order      []string
	adapters   map[string]source.Adapter
	factories  map[string]func() source.Adapter
	active     map[string]bool
	configured map[string]bool
}

// New creates an empty registry backed by store.
func New(store credstore.Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		logger:     slog.Default(),
		adapters:   make(map[string]source.Adapter),
		factories:  make(map[string]func() source.Adapter),
		active:     make(map[string]bool),
		configured: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds adapter under id. Duplicate ids fail with
// apperr.ErrAlreadyExists unless replacing is allowed.
func (r *Registry) Register(id string, adapter source.Adapter, opts ...RegisterOption) error {
	if id == "" || adapter == nil {
		return errors.New("registry: id and adapter are required")
	}
	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.adapters[id]; exists {
		if !reg.replace && !r.allowReplace {
			return fmt.Errorf("source %q: %w", id, apperr.ErrAlreadyExists)
		}
		closeAdapter(old)
		delete(r.active, id)
		delete(r.configured, id)
	} else {
		r.order = append(r.order, id)
	}
	r.adapters[id] = adapter
	if reg.factory != nil {
		r.factories[id] = reg.factory
	} else {
		delete(r.factories, id)
	}
	return nil
}

// Unregister removes id. Stored credentials are kept; see DeleteCredentials.
func (r *Registry) Unregister(id string) error {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.adapters[id]
	if !ok {
		return apperr.NotFound("source", id)
	}
	closeAdapter(a)
	delete(r.adapters, id)
	delete(r.factories, id)
	delete(r.active, id)
	delete(r.configured, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// Adapter returns the adapter registered under id.
func (r *Registry) Adapter(id string) (source.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// EnableSource applies the stored credentials to the adapter and marks it
// active. Any failure leaves the active set unchanged.
//
// An adapter that was configured before is re-marked active without reading
// the store unless the registry refreshes on enable.
func (r *Registry) EnableSource(ctx context.Context, id string) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	a, ok := r.Adapter(id)
	if !ok {
		return apperr.NotFound("source", id)
	}

	r.mu.RLock()
	configured := r.configured[id]
	r.mu.RUnlock()

	if configured && !r.refreshOnEnable {
		r.activate(id)
		if err := r.setEnabled(ctx, id, true); err != nil {
			r.logger.Warn("persist enabled flag failed",
				slog.String("source", id), slog.String("error", err.Error()))
		}
		return nil
	}

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("enable %s: %w", id, err)
	}
	if err := a.Configure(rec.Credentials); err != nil {
		return err
	}
	r.mu.Lock()
	r.configured[id] = true
	r.mu.Unlock()

	if !rec.Enabled {
		if err := r.store.Set(ctx, id, rec.Credentials, true); err != nil {
			return fmt.Errorf("enable %s: %w", id, err)
		}
	}
	r.activate(id)
	return nil
}

func (r *Registry) activate(id string) {
	r.mu.Lock()
	r.active[id] = true
	r.mu.Unlock()

	r.logger.Info("source enabled", slog.String("source", id))
	r.emit(EventEnabled, id)
}

// setEnabled rewrites the persisted enabled flag of id. A missing record is
// left alone.
func (r *Registry) setEnabled(ctx context.Context, id string, enabled bool) error {
	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Enabled == enabled {
		return nil
	}
	return r.store.Set(ctx, id, rec.Credentials, enabled)
}

// DisableSource removes id from the active set and persists the flag. The
// adapter keeps its configuration.
func (r *Registry) DisableSource(ctx context.Context, id string) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if _, ok := r.Adapter(id); !ok {
		return apperr.NotFound("source", id)
	}
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()

	r.logger.Info("source disabled", slog.String("source", id))
	r.emit(EventDisabled, id)

	if err := r.setEnabled(ctx, id, false); err != nil {
		return fmt.Errorf("disable %s: %w", id, err)
	}
	return nil
}

// ActiveSources returns the active sources in registration order.
func (r *Registry) ActiveSources() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.active))
	for _, id := range r.order {
		if r.active[id] {
			out = append(out, Entry{ID: id, Adapter: r.adapters[id]})
		}
	}
	return out
}

// IsActive reports whether id is in the active set.
func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

// SaveCredentials validates creds with the adapter and stores them, keeping
// the current enabled flag. An active source is reconfigured immediately;
// an inactive one picks the new credentials up on its next enable.
func (r *Registry) SaveCredentials(ctx context.Context, id string, creds source.Credentials) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	a, ok := r.Adapter(id)
	if !ok {
		return apperr.NotFound("source", id)
	}
	if v := a.ValidateCredentials(creds); !v.Valid {
		return &apperr.ConfigError{Source: id, Errors: v.Errors}
	}

	r.mu.RLock()
	active := r.active[id]
	r.mu.RUnlock()

	r.mu.Lock()
	delete(r.configured, id)
	r.mu.Unlock()

	// Active sources are configured before the store write. A rejected
	// configuration deactivates the source and clears its stored flag.
	if active {
		if err := a.Configure(creds); err != nil {
			r.mu.Lock()
			delete(r.active, id)
			r.mu.Unlock()
			r.emit(EventDisabled, id)
			if perr := r.setEnabled(ctx, id, false); perr != nil {
				r.logger.Warn("persist enabled flag failed",
					slog.String("source", id), slog.String("error", perr.Error()))
			}
			return err
		}
		r.mu.Lock()
		r.configured[id] = true
		r.mu.Unlock()
	}

	if err := r.store.Set(ctx, id, creds, active); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}

	r.logger.Info("source configured", slog.String("source", id), slog.Any("credentials", creds))
	r.emit(EventConfigured, id)
	return nil
}

// DeleteCredentials deactivates id and removes its stored record.
func (r *Registry) DeleteCredentials(ctx context.Context, id string) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	if _, ok := r.Adapter(id); !ok {
		return apperr.NotFound("source", id)
	}
	r.mu.Lock()
	wasActive := r.active[id]
	delete(r.active, id)
	delete(r.configured, id)
	r.mu.Unlock()

	if wasActive {
		r.emit(EventDisabled, id)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Seed stores creds for id unless a record already exists. It is used to
// provision sources from the config file without overriding later edits.
func (r *Registry) Seed(ctx context.Context, id string, creds source.Credentials, enabled bool) error {
	r.ops.Lock()
	defer r.ops.Unlock()

	a, ok := r.Adapter(id)
	if !ok {
		return apperr.NotFound("source", id)
	}
	_, err := r.store.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("seed %s: %w", id, err)
	}
	if v := a.ValidateCredentials(creds); !v.Valid {
		return &apperr.ConfigError{Source: id, Errors: v.Errors}
	}
	if err := r.store.Set(ctx, id, creds, enabled); err != nil {
		return fmt.Errorf("seed %s: %w", id, err)
	}
	r.logger.Info("source seeded", slog.String("source", id), slog.Bool("enabled", enabled))
	return nil
}

// Restore enables every registered source whose stored record is enabled.
// Failures are logged per source and never abort the pass. It returns the
// number of sources enabled.
func (r *Registry) Restore(ctx context.Context) int {
	r.mu.RLock()
	ids := slices.Clone(r.order)
	r.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		rec, err := r.store.Get(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.Warn("restore: read credentials failed", slog.String("source", id), slog.String("error", err.Error()))
			continue
		}
		if !rec.Enabled {
			continue
		}
		if err := r.EnableSource(ctx, id); err != nil {
			r.logger.Warn("restore: enable failed", slog.String("source", id), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n
}

// Sources lists every registered source in registration order.
func (r *Registry) Sources() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.order))
	for _, id := range r.order {
		a := r.adapters[id]
		out = append(out, Status{
			Descriptor: source.Descriptor{ID: id, Kind: a.Kind(), DisplayName: a.Name()},
			Active:     r.active[id],
			Configured: r.configured[id],
			Fields:     a.RequiredFields(),
		})
	}
	return out
}

// TestSource checks connectivity. With nil creds the live adapter is tested
// as configured; otherwise creds are validated and tried on a fresh adapter
// from the registered factory.
func (r *Registry) TestSource(ctx context.Context, id string, creds source.Credentials) (source.ConnectionResult, error) {
	a, ok := r.Adapter(id)
	if !ok {
		return source.ConnectionResult{}, apperr.NotFound("source", id)
	}
	if creds == nil {
		return a.TestConnection(ctx), nil
	}

	r.mu.RLock()
	factory := r.factories[id]
	r.mu.RUnlock()
	if factory == nil {
		return source.ConnectionResult{}, fmt.Errorf("source %q cannot test unsaved credentials", id)
	}

	probe := factory()
	defer closeAdapter(probe)
	if err := probe.Configure(creds); err != nil {
		var ce *apperr.ConfigError
		if errors.As(err, &ce) && len(ce.Errors) > 0 {
			return source.ConnectionResult{Success: false, Error: ce.Errors[0]}, nil
		}
		return source.ConnectionResult{Success: false, Error: err.Error()}, nil
	}
	return probe.TestConnection(ctx), nil
}

// Close releases adapters that hold resources such as file watchers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.adapters {
		closeAdapter(a)
	}
	return nil
}

func (r *Registry) emit(kind, id string) {
	if r.notify != nil {
		r.notify(kind, map[string]string{"id": id})
	}
}

func closeAdapter(a source.Adapter) {
	if c, ok := a.(io.Closer); ok {
		_ = c.Close()
	}
}
