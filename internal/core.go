package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/starford/shelfcheck/internal/aggregator"
	"github.com/starford/shelfcheck/internal/credstore"
	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/page/sites"
	"github.com/starford/shelfcheck/internal/registry"
	"github.com/starford/shelfcheck/internal/scan"
	"github.com/starford/shelfcheck/internal/source"
	"github.com/starford/shelfcheck/internal/source/apiclient"
	"github.com/starford/shelfcheck/internal/source/filesystem"
	"github.com/starford/shelfcheck/internal/source/jellyfin"
	"github.com/starford/shelfcheck/internal/source/plex"
	"github.com/starford/shelfcheck/internal/sse"
)

// EventCacheInvalidated is published when a library watcher drops a cached
// listing.
const EventCacheInvalidated = "cache.invalidated"

// SourceIDs lists the built-in sources in registration order.
var SourceIDs = []string{"jellyfin", "emby", "plex", "local", "network"}

// Core holds the components shared by the server, the CLI and the MCP server.
type Core struct {
	Store      credstore.Store
	Registry   *registry.Registry
	Aggregator *aggregator.Aggregator
	Messages   *messaging.Handler
	Scanner    *scan.Scanner
}

// NewCore opens the credential store, registers every built-in source,
// applies seed credentials and restores the sources that were enabled.
// broker may be nil; when set it receives registry, check and cache events
// and library watchers are started.
func NewCore(ctx context.Context, cfg *Config, logger *slog.Logger, broker *sse.Broker) (*Core, error) {
	store, err := openStore(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{registry.WithLogger(logger)}
	aggOpts := []aggregator.Option{aggregator.WithLogger(logger)}
	if cfg.Sources.AllowReplace {
		regOpts = append(regOpts, registry.AllowReplace())
	}
	if cfg.Sources.RefreshOnEnable {
		regOpts = append(regOpts, registry.RefreshOnEnable())
	}
	if broker != nil {
		regOpts = append(regOpts, registry.WithNotifier(broker.PublishSourceEvent))
		aggOpts = append(aggOpts, aggregator.WithNotifier(broker.Notify))
	}
	reg := registry.New(store, regOpts...)

	if err := registerSources(reg, cfg.Sources, logger, broker); err != nil {
		_ = store.Close()
		return nil, err
	}

	for _, id := range slices.Sorted(maps.Keys(cfg.Sources.Seed)) {
		s := cfg.Sources.Seed[id]
		if err := reg.Seed(ctx, id, s.Credentials, s.Enabled); err != nil {
			logger.Warn("seed failed", slog.String("source", id), slog.String("error", err.Error()))
		}
	}
	n := reg.Restore(ctx)
	logger.Info("sources restored", slog.Int("enabled", n))

	agg := aggregator.New(reg, aggOpts...)
	msgs := messaging.NewHandler(agg, logger)
	scanner := scan.New(sites.Default(), messaging.NewLocal(msgs), scan.Options{
		Timeout:   cfg.Pages.FetchTimeout,
		UserAgent: cfg.Pages.UserAgent,
		Logger:    logger,
	})

	return &Core{
		Store:      store,
		Registry:   reg,
		Aggregator: agg,
		Messages:   msgs,
		Scanner:    scanner,
	}, nil
}

// Close stops adapters and closes the credential store.
func (c *Core) Close() error {
	return errors.Join(c.Registry.Close(), c.Store.Close())
}

func openStore(cfg CredentialsConfig) (credstore.Store, error) {
	switch cfg.Backend {
	case BackendKeyring:
		return credstore.NewKeyring(cfg.Keyring.Service), nil
	case BackendMemory:
		return credstore.NewMemory(), nil
	default:
		store, err := credstore.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		return store, nil
	}
}

func registerSources(reg *registry.Registry, cfg SourcesConfig, logger *slog.Logger, broker *sse.Broker) error {
	apiOpts := apiclient.Options{
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		CacheTTL:          cfg.CacheTTL,
	}
	probeOpts := filesystem.Options{
		CacheTTL:     cfg.CacheTTL,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	}
	liveOpts := probeOpts
	if broker != nil {
		liveOpts.Watch = cfg.Watch
		liveOpts.OnInvalidate = func(name string) {
			broker.Notify(EventCacheInvalidated, map[string]string{"source": name})
		}
	}

	builders := map[string]func(filesystem.Options) source.Adapter{
		"jellyfin": func(filesystem.Options) source.Adapter { return jellyfin.New("Jellyfin", apiOpts) },
		"emby":     func(filesystem.Options) source.Adapter { return jellyfin.New("Emby", apiOpts) },
		"plex":     func(filesystem.Options) source.Adapter { return plex.New(apiOpts) },
		"local":    func(o filesystem.Options) source.Adapter { return filesystem.NewLocal(o) },
		"network":  func(o filesystem.Options) source.Adapter { return filesystem.NewNetwork(o) },
	}
	for _, id := range SourceIDs {
		build := builders[id]
		err := reg.Register(id, build(liveOpts), registry.Factory(func() source.Adapter {
			return build(probeOpts)
		}))
		if err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}
	return nil
}

// NewLogger creates the JSON logger used across the application.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
