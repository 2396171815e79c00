// Package filesystem checks local directories and mounted network shares for
// a title by parsing media file and folder names.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/afero"

	"github.com/starford/shelfcheck/internal/apperr"
	"github.com/starford/shelfcheck/internal/cache"
	"github.com/starford/shelfcheck/internal/match"
	"github.com/starford/shelfcheck/internal/source"
)

var (
	errNotConfigured = errors.New("not configured")
	uncRx            = regexp.MustCompile(`^\\\\[^\\/]+\\[^\\/]+`)
	shareSchemes     = map[string]bool{"smb": true, "nfs": true, "afp": true, "cifs": true}
)

// Credentials configures a local filesystem source.
type Credentials struct {
	Paths     []string `json:"paths"`
	Recursive bool     `json:"recursive"`
	Patterns  []string `json:"patterns,omitempty"`
}

// ShareCredentials configures a network share mounted at MountPath.
type ShareCredentials struct {
	ShareURL  string   `json:"shareUrl"`
	MountPath string   `json:"mountPath"`
	Recursive bool     `json:"recursive"`
	Patterns  []string `json:"patterns,omitempty"`
}

// Options tunes an Adapter. Zero values select defaults.
type Options struct {
	// Fs is the filesystem to list. Default is the OS filesystem.
	Fs afero.Fs
	// CacheTTL is the lifetime of a cached listing. Zero disables caching.
	CacheTTL time.Duration
	// ProbeTimeout bounds mount checks and listings of network shares.
	// Default 5s.
	ProbeTimeout time.Duration
	// Watch starts an fsnotify watcher on the configured roots. Only
	// honoured for the OS filesystem.
	Watch bool
	// OnInvalidate is called after the watcher drops the cached listing.
	OnInvalidate func(name string)
	Logger       *slog.Logger
}

// Adapter implements source.Adapter over a directory tree.
type Adapter struct {
	name         string
	kind         source.Kind
	fs           afero.Fs
	probeTimeout time.Duration
	watch        bool
	onInvalidate func(string)
	logger       *slog.Logger
	listings     *cache.Loader[[]Entry]

	mu      sync.Mutex
	lib     *library
	watcher *watcher
}

var _ source.Adapter = (*Adapter)(nil)

// NewLocal creates an unconfigured local folder adapter.
func NewLocal(opts Options) *Adapter {
	return newAdapter("Local Folders", source.KindFilesystem, opts)
}

// NewNetwork creates an unconfigured network share adapter.
func NewNetwork(opts Options) *Adapter {
	return newAdapter("Network Share", source.KindNetwork, opts)
}

func newAdapter(name string, kind source.Kind, opts Options) *Adapter {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	probe := opts.ProbeTimeout
	if probe <= 0 {
		probe = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	_, osfs := fs.(*afero.OsFs)
	return &Adapter{
		name:         name,
		kind:         kind,
		fs:           fs,
		probeTimeout: probe,
		watch:        opts.Watch && osfs,
		onInvalidate: opts.OnInvalidate,
		logger:       logger.With(slog.String("source", name)),
		listings:     cache.NewLoader[[]Entry](opts.CacheTTL),
	}
}

func (a *Adapter) Name() string      { return a.name }
func (a *Adapter) Kind() source.Kind { return a.kind }

func (a *Adapter) RequiredFields() []source.Field {
	if a.kind == source.KindNetwork {
		return []source.Field{
			{Key: "shareUrl", Label: "Share URL", Input: source.InputURL, Required: true},
			{Key: "mountPath", Label: "Mount Path", Input: source.InputText, Required: true},
			{Key: "recursive", Label: "Include Subfolders", Input: source.InputCheckbox},
			{Key: "patterns", Label: "File Patterns", Input: source.InputPaths},
		}
	}
	return []source.Field{
		{Key: "paths", Label: "Folders", Input: source.InputPaths, Required: true},
		{Key: "recursive", Label: "Include Subfolders", Input: source.InputCheckbox},
		{Key: "patterns", Label: "File Patterns", Input: source.InputPaths},
	}
}

func (a *Adapter) ValidateCredentials(c source.Credentials) source.Validation {
	d, err := a.decode(c)
	if err != nil {
		return source.Invalid("Invalid credentials")
	}
	return a.validate(d)
}

// decoded is the kind-independent form of both credential shapes.
type decoded struct {
	paths     []string
	share     string
	recursive bool
	patterns  []string
}

func (a *Adapter) decode(c source.Credentials) (decoded, error) {
	if a.kind == source.KindNetwork {
		sc, err := source.Decode[ShareCredentials](c)
		if err != nil {
			return decoded{}, err
		}
		var paths []string
		if strings.TrimSpace(sc.MountPath) != "" {
			paths = []string{sc.MountPath}
		}
		return decoded{paths: paths, share: sc.ShareURL, recursive: sc.Recursive, patterns: sc.Patterns}, nil
	}
	lc, err := source.Decode[Credentials](c)
	if err != nil {
		return decoded{}, err
	}
	return decoded{paths: lc.Paths, recursive: lc.Recursive, patterns: lc.Patterns}, nil
}

func (a *Adapter) validate(d decoded) source.Validation {
	patterns := source.Rules(d.patterns, validation.By(validPatterns))
	if a.kind == source.KindNetwork {
		return source.Check(
			source.Rules(strings.TrimSpace(d.share), source.Required("Share URL"), validation.By(validShare)),
			source.Rules(d.paths, source.Required("Mount Path"), validation.By(absolutePaths("Mount Path must be an absolute path"))),
			patterns,
		)
	}
	return source.Check(
		source.Rules(d.paths, validation.Required.Error("At least one folder is required"), validation.By(absolutePaths("Folders must be absolute paths"))),
		patterns,
	)
}

func absolutePaths(msg string) validation.RuleFunc {
	return func(value any) error {
		paths, _ := value.([]string)
		for _, p := range paths {
			p = strings.TrimSpace(p)
			if p == "" || !filepath.IsAbs(p) {
				return errors.New(msg)
			}
		}
		return nil
	}
}

func validPatterns(value any) error {
	patterns, _ := value.([]string)
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return errors.New("Invalid file pattern: " + p)
		}
	}
	return nil
}

func validShare(value any) error {
	s, _ := value.(string)
	if s == "" || uncRx.MatchString(s) {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || !shareSchemes[strings.ToLower(u.Scheme)] {
		return errors.New("Invalid Share URL")
	}
	return nil
}

func (a *Adapter) Configure(c source.Credentials) error {
	d, err := a.decode(c)
	if err != nil {
		return &apperr.ConfigError{Source: a.name, Errors: []string{"Invalid credentials"}}
	}
	if v := a.validate(d); !v.Valid {
		return &apperr.ConfigError{Source: a.name, Errors: v.Errors}
	}

	lib := &library{recursive: d.recursive}
	for _, p := range d.paths {
		lib.roots = append(lib.roots, filepath.Clean(strings.TrimSpace(p)))
	}
	for _, p := range d.patterns {
		if p = strings.TrimSpace(p); p != "" {
			lib.patterns = append(lib.patterns, p)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	a.lib = lib
	a.listings.Invalidate()

	if a.watch {
		w, err := startWatcher(lib.roots, lib.recursive, a.logger, a.invalidate)
		if err != nil {
			// Listings still expire by TTL.
			a.logger.Warn("watcher: start failed", slog.String("error", err.Error()))
		} else {
			a.watcher = w
		}
	}
	return nil
}

func (a *Adapter) invalidate() {
	a.listings.Invalidate()
	a.logger.Debug("listing invalidated")
	if a.onInvalidate != nil {
		a.onInvalidate(a.name)
	}
}

// Close stops the watcher, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}
	return nil
}

func (a *Adapter) current() *library {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lib
}

func (a *Adapter) TestConnection(ctx context.Context) source.ConnectionResult {
	lib := a.current()
	if lib == nil {
		return source.ConnectionResult{Success: false, Error: errNotConfigured.Error()}
	}
	_, err := bounded(ctx, a.timeout(), func() (struct{}, error) {
		for _, root := range lib.roots {
			ok, err := afero.IsDir(a.fs, root)
			if err != nil {
				return struct{}{}, err
			}
			if !ok {
				return struct{}{}, fmt.Errorf("%s: %w", root, errNotDir)
			}
			if _, err := afero.ReadDir(a.fs, root); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return source.ConnectionResult{Success: false, Error: err.Error()}
	}
	return source.ConnectionResult{Success: true}
}

func (a *Adapter) CheckMovie(ctx context.Context, title string, year *int) (source.CheckResult, error) {
	lib := a.current()
	if lib == nil {
		return source.CheckResult{}, &apperr.ConnectionError{Source: a.name, Op: "list", Err: errNotConfigured}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return source.CheckResult{}, nil
	}

	entries, err := a.Entries(ctx)
	if err != nil {
		return source.CheckResult{}, err
	}

	best, ok := match.Best(title, year, entries, func(e Entry) (string, *int) {
		return e.Title, e.Year
	})
	if !ok {
		return source.CheckResult{}, nil
	}
	return source.CheckResult{
		Found: true,
		Movie: &source.Movie{ID: best.Path, Name: best.Title, Year: best.Year},
	}, nil
}

// Entries returns the (possibly cached) listing of the configured library.
func (a *Adapter) Entries(ctx context.Context) ([]Entry, error) {
	lib := a.current()
	if lib == nil {
		return nil, &apperr.ConnectionError{Source: a.name, Op: "list", Err: errNotConfigured}
	}
	entries, err := a.listings.Get(lib.key(), func() ([]Entry, error) {
		return bounded(ctx, a.timeout(), func() ([]Entry, error) {
			return scan(a.fs, *lib)
		})
	})
	if err != nil {
		return nil, &apperr.ConnectionError{Source: a.name, Op: "list", Err: err}
	}
	return entries, nil
}

// timeout is the probe timeout for network shares. Local folders are only
// bounded by the caller's context.
func (a *Adapter) timeout() time.Duration {
	if a.kind == source.KindNetwork {
		return a.probeTimeout
	}
	return 0
}

type outcome[T any] struct {
	value T
	err   error
}

// bounded runs fn until it returns, ctx ends or timeout (if positive)
// elapses. A hung mount blocks stat calls indefinitely, so fn is left running
// in the background after the deadline.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn()
		done <- outcome[T]{v, err}
	}()
	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("mount did not respond: %w", ctx.Err())
	}
}
