package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/credstore"
	"github.com/starford/shelfcheck/internal/source"
	"github.com/starford/shelfcheck/internal/testutil"
)

// fakeAdapter requires a "token" credential and records Configure calls.
type fakeAdapter struct {
	name string
	// rejectToken makes Configure fail for an otherwise valid token.
	rejectToken string

	mu         sync.Mutex
	configured []source.Credentials
	closed     bool
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Kind() source.Kind { return source.KindAPI }
func (f *fakeAdapter) RequiredFields() []source.Field {
	return []source.Field{{Key: "token", Label: "Token", Input: source.InputPassword, Required: true}}
}

func (f *fakeAdapter) ValidateCredentials(c source.Credentials) source.Validation {
	if tok, _ := c["token"].(string); tok == "" {
		return source.Invalid("Token is required")
	}
	return source.Validation{Valid: true, Errors: []string{}}
}

func (f *fakeAdapter) Configure(c source.Credentials) error {
	if v := f.ValidateCredentials(c); !v.Valid {
		return &apperr.ConfigError{Source: f.name, Errors: v.Errors}
	}
	if f.rejectToken != "" && c["token"] == f.rejectToken {
		return &apperr.ConfigError{Source: f.name, Errors: []string{"Token rejected"}}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, c)
	return nil
}

func (f *fakeAdapter) configureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configured)
}

func (f *fakeAdapter) TestConnection(context.Context) source.ConnectionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.configured) == 0 {
		return source.ConnectionResult{Success: false, Error: "not configured"}
	}
	if f.configured[len(f.configured)-1]["token"] == "bad" {
		return source.ConnectionResult{Success: false, Error: "unauthorized"}
	}
	return source.ConnectionResult{Success: true}
}

func (f *fakeAdapter) CheckMovie(context.Context, string, *int) (source.CheckResult, error) {
	return source.CheckResult{}, nil
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// flakyStore fails every Get once broken is set.
type flakyStore struct {
	*credstore.Memory
	broken bool
}

var errLocked = errors.New("keyring locked")

func (s *flakyStore) Get(ctx context.Context, id string) (credstore.Record, error) {
	if s.broken {
		return credstore.Record{}, errLocked
	}
	return s.Memory.Get(ctx, id)
}

func newRegistry(t *testing.T, opts ...Option) (*Registry, *credstore.Memory) {
	t.Helper()
	store := credstore.NewMemory()
	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	return New(store, opts...), store
}

func ids(entries []Entry) string {
	var s []string
	for _, e := range entries {
		s = append(s, e.ID)
	}
	return strings.Join(s, ",")
}

func TestRegisterDuplicate(t *testing.T) {
	r, _ := newRegistry(t)
	first := &fakeAdapter{name: "A"}
	if err := r.Register("a", first); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("a", &fakeAdapter{name: "A2"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v", err)
	}
	if a, _ := r.Adapter("a"); a != first {
		t.Error("duplicate Register replaced the adapter")
	}

	second := &fakeAdapter{name: "A2"}
	if err := r.Register("a", second, Replace()); err != nil {
		t.Fatal(err)
	}
	if a, _ := r.Adapter("a"); a != second {
		t.Error("Replace did not take effect")
	}
	if !first.closed {
		t.Error("replaced adapter not closed")
	}
}

func TestAllowReplaceOption(t *testing.T) {
	r, _ := newRegistry(t, AllowReplace())
	_ = r.Register("a", &fakeAdapter{name: "A"})
	_ = r.Register("b", &fakeAdapter{name: "B"})
	if err := r.Register("a", &fakeAdapter{name: "A2"}); err != nil {
		t.Fatal(err)
	}
	src := r.Sources()
	if len(src) != 2 || src[0].ID != "a" || src[0].DisplayName != "A2" {
		t.Errorf("replace should keep position: %+v", src)
	}
}

func TestEnableSource(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	a := &fakeAdapter{name: "A"}
	_ = r.Register("a", a)

	// No stored credentials: stays inactive.
	if err := r.EnableSource(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if len(r.ActiveSources()) != 0 {
		t.Fatal("source activated without credentials")
	}

	_ = store.Set(ctx, "a", source.Credentials{"token": "t1"}, false)
	if err := r.EnableSource(ctx, "a"); err != nil {
		t.Fatalf("EnableSource: %v", err)
	}
	if ids(r.ActiveSources()) != "a" {
		t.Errorf("active = %s", ids(r.ActiveSources()))
	}
	rec, _ := store.Get(ctx, "a")
	if !rec.Enabled {
		t.Error("enabled flag not persisted")
	}
	if a.configureCount() != 1 {
		t.Errorf("configure count = %d", a.configureCount())
	}
}

func TestEnableUnknownLeavesActiveSetUnchanged(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	_ = r.Register("a", &fakeAdapter{name: "A"})
	_ = store.Set(ctx, "a", source.Credentials{"token": "t"}, false)
	_ = r.EnableSource(ctx, "a")

	err := r.EnableSource(ctx, "unknown")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if ids(r.ActiveSources()) != "a" {
		t.Errorf("active = %s", ids(r.ActiveSources()))
	}
}

func TestEnableWithInvalidStoredCredentials(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	_ = r.Register("a", &fakeAdapter{name: "A"})
	_ = store.Set(ctx, "a", source.Credentials{}, false)

	var ce *apperr.ConfigError
	if err := r.EnableSource(ctx, "a"); !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	if r.IsActive("a") {
		t.Error("partially configured source is active")
	}
	if rec, _ := store.Get(ctx, "a"); rec.Enabled {
		t.Error("enabled persisted after failure")
	}
}

func TestReEnableDoesNotReconfigure(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	a := &fakeAdapter{name: "A"}
	_ = r.Register("a", a)
	_ = store.Set(ctx, "a", source.Credentials{"token": "t1"}, false)

	_ = r.EnableSource(ctx, "a")
	_ = r.DisableSource(ctx, "a")
	if r.IsActive("a") {
		t.Fatal("still active after disable")
	}
	if rec, _ := store.Get(ctx, "a"); rec.Enabled {
		t.Error("disabled flag not persisted")
	}

	// Out-of-band change to the store is not picked up on re-enable.
	_ = store.Set(ctx, "a", source.Credentials{"token": "t2"}, false)
	_ = r.EnableSource(ctx, "a")
	if a.configureCount() != 1 {
		t.Errorf("configure count = %d, want 1", a.configureCount())
	}
}

func TestReEnableSkipsStore(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Memory: credstore.NewMemory()}
	r := New(store, WithLogger(testutil.Logger()))
	a := &fakeAdapter{name: "A"}
	_ = r.Register("a", a)
	_ = store.Set(ctx, "a", source.Credentials{"token": "t1"}, false)

	if err := r.EnableSource(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	_ = r.DisableSource(ctx, "a")

	store.broken = true
	if err := r.EnableSource(ctx, "a"); err != nil {
		t.Fatalf("re-enable err = %v", err)
	}
	if !r.IsActive("a") {
		t.Error("configured source not re-activated")
	}
	if a.configureCount() != 1 {
		t.Errorf("configure count = %d, want 1", a.configureCount())
	}

	// A source that was never configured still needs the store.
	_ = r.Register("b", &fakeAdapter{name: "B"})
	if err := r.EnableSource(ctx, "b"); !errors.Is(err, errLocked) {
		t.Errorf("first enable err = %v", err)
	}
	if r.IsActive("b") {
		t.Error("b active without credentials")
	}
}

func TestSaveCredentialsConfigureFailure(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	a := &fakeAdapter{name: "A", rejectToken: "t2"}
	_ = r.Register("a", a)
	_ = r.SaveCredentials(ctx, "a", source.Credentials{"token": "t1"})
	if err := r.EnableSource(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	var ce *apperr.ConfigError
	if err := r.SaveCredentials(ctx, "a", source.Credentials{"token": "t2"}); !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	if r.IsActive("a") {
		t.Error("source still active after failed configure")
	}
	rec, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Enabled {
		t.Error("store still marks the source enabled")
	}
	if rec.Credentials["token"] != "t1" {
		t.Errorf("rejected credentials stored: %+v", rec.Credentials)
	}
}

func TestRefreshOnEnable(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t, RefreshOnEnable())
	a := &fakeAdapter{name: "A"}
	_ = r.Register("a", a)
	_ = store.Set(ctx, "a", source.Credentials{"token": "t1"}, false)

	_ = r.EnableSource(ctx, "a")
	_ = r.DisableSource(ctx, "a")
	_ = r.EnableSource(ctx, "a")
	if a.configureCount() != 2 {
		t.Errorf("configure count = %d, want 2", a.configureCount())
	}
}

func TestActiveSourcesRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	for _, id := range []string{"c", "a", "b"} {
		_ = r.Register(id, &fakeAdapter{name: strings.ToUpper(id)})
		_ = store.Set(ctx, id, source.Credentials{"token": "t"}, false)
	}
	for _, id := range []string{"b", "c", "a"} {
		if err := r.EnableSource(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if got := ids(r.ActiveSources()); got != "c,a,b" {
		t.Errorf("active = %s, want c,a,b", got)
	}

	if err := r.Unregister("a"); err != nil {
		t.Fatal(err)
	}
	if got := ids(r.ActiveSources()); got != "c,b" {
		t.Errorf("after unregister active = %s", got)
	}
	if err := r.Unregister("a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Unregister err = %v", err)
	}
}

func TestSaveCredentials(t *testing.T) {
	ctx := context.Background()
	var events []string
	r, store := newRegistry(t, WithNotifier(func(kind string, data map[string]string) {
		events = append(events, kind+":"+data["id"])
	}))
	a := &fakeAdapter{name: "A"}
	_ = r.Register("a", a)

	var ce *apperr.ConfigError
	if err := r.SaveCredentials(ctx, "a", source.Credentials{}); !errors.As(err, &ce) {
		t.Fatalf("err = %v", err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("invalid credentials were stored")
	}

	if err := r.SaveCredentials(ctx, "a", source.Credentials{"token": "t1"}); err != nil {
		t.Fatal(err)
	}
	if a.configureCount() != 0 {
		t.Error("inactive source configured on save")
	}
	_ = r.EnableSource(ctx, "a")

	// Active: reconfigured immediately, enabled flag kept.
	if err := r.SaveCredentials(ctx, "a", source.Credentials{"token": "t2"}); err != nil {
		t.Fatal(err)
	}
	if a.configureCount() != 2 {
		t.Errorf("configure count = %d", a.configureCount())
	}
	rec, _ := store.Get(ctx, "a")
	if !rec.Enabled || rec.Credentials["token"] != "t2" {
		t.Errorf("rec = %+v", rec)
	}

	want := "source.configured:a,source.enabled:a,source.configured:a"
	if got := strings.Join(events, ","); got != want {
		t.Errorf("events = %s", got)
	}
}

func TestRestoreAndSeed(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	_ = r.Register("a", &fakeAdapter{name: "A"})
	_ = r.Register("b", &fakeAdapter{name: "B"})
	_ = r.Register("c", &fakeAdapter{name: "C"})

	if err := r.Seed(ctx, "a", source.Credentials{"token": "t"}, true); err != nil {
		t.Fatal(err)
	}
	// Existing records win over seeds.
	_ = store.Set(ctx, "b", source.Credentials{"token": "user"}, false)
	if err := r.Seed(ctx, "b", source.Credentials{"token": "seed"}, true); err != nil {
		t.Fatal(err)
	}
	if rec, _ := store.Get(ctx, "b"); rec.Enabled || rec.Credentials["token"] != "user" {
		t.Errorf("seed overwrote b: %+v", rec)
	}
	// Broken record is logged and skipped.
	_ = store.Set(ctx, "c", source.Credentials{}, true)

	if n := r.Restore(ctx); n != 1 {
		t.Errorf("restored %d, want 1", n)
	}
	if got := ids(r.ActiveSources()); got != "a" {
		t.Errorf("active = %s", got)
	}
}

func TestTestSource(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	live := &fakeAdapter{name: "A"}
	_ = r.Register("a", live, Factory(func() source.Adapter { return &fakeAdapter{name: "A"} }))
	_ = r.Register("b", &fakeAdapter{name: "B"})

	res, err := r.TestSource(ctx, "a", nil)
	if err != nil || res.Success || res.Error != "not configured" {
		t.Errorf("unconfigured = %+v, %v", res, err)
	}

	res, _ = r.TestSource(ctx, "a", source.Credentials{"token": "bad"})
	if res.Success || res.Error != "unauthorized" {
		t.Errorf("bad creds = %+v", res)
	}
	res, _ = r.TestSource(ctx, "a", source.Credentials{})
	if res.Success || res.Error != "Token is required" {
		t.Errorf("invalid creds = %+v", res)
	}
	res, _ = r.TestSource(ctx, "a", source.Credentials{"token": "good"})
	if !res.Success {
		t.Errorf("good creds = %+v", res)
	}
	if live.configureCount() != 0 {
		t.Error("testing unsaved credentials touched the live adapter")
	}

	_ = store.Set(ctx, "a", source.Credentials{"token": "t"}, false)
	_ = r.EnableSource(ctx, "a")
	if res, _ := r.TestSource(ctx, "a", nil); !res.Success {
		t.Errorf("configured = %+v", res)
	}

	if _, err := r.TestSource(ctx, "b", source.Credentials{"token": "x"}); err == nil {
		t.Error("expected error without factory")
	}
	if _, err := r.TestSource(ctx, "zzz", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown err = %v", err)
	}
}

func TestDeleteCredentials(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	_ = r.Register("a", &fakeAdapter{name: "A"})
	_ = r.SaveCredentials(ctx, "a", source.Credentials{"token": "t"})
	_ = r.EnableSource(ctx, "a")

	if err := r.DeleteCredentials(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if r.IsActive("a") {
		t.Error("still active")
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("record not deleted")
	}
	if s := r.Sources(); s[0].Configured {
		t.Error("still marked configured")
	}
}
