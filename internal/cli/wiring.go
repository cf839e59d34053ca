package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"googlemaps.github.io/maps"

	"github.com/roach88/atlas/internal/config"
	"github.com/roach88/atlas/internal/geocache"
	"github.com/roach88/atlas/internal/geocoder"
	"github.com/roach88/atlas/internal/store"
	"github.com/roach88/atlas/internal/transport"
)

// cacheHandle is a loaded geocode cache and whatever holds its store open.
type cacheHandle struct {
	*geocache.Cache

	// sql is set for the sqlite and postgres backends.
	sql     *store.Store
	backend string
	closers []func() error
}

// Close releases the store. It does not flush.
func (h *cacheHandle) Close() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// openCache builds the configured backend and loads the cache from it.
// A store that cannot be opened is a command error; a store that opens but
// fails to load leaves the cache empty.
func openCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*cacheHandle, error) {
	h := &cacheHandle{backend: cfg.Backend}

	var backend geocache.Backend
	switch cfg.Backend {
	case "file":
		backend = geocache.NewFileBackend(cfg.Path)
	case "sqlite":
		st, err := store.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache %s: %w", cfg.Path, err)
		}
		h.sql = st
		h.closers = append(h.closers, st.Close)
		backend = st
	case "postgres":
		st, err := store.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres cache: %w", err)
		}
		h.sql = st
		h.closers = append(h.closers, st.Close)
		backend = st
	case "redis":
		client := geocache.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if client == nil {
			return nil, fmt.Errorf("redis cache: no address configured")
		}
		h.closers = append(h.closers, client.Close)
		backend = geocache.NewRedisBackend(client, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	h.Cache = geocache.New(backend,
		geocache.WithNegativeTTL(cfg.NegativeTTL),
		geocache.WithLogger(logger),
	)
	h.Cache.Load(ctx)
	return h, nil
}

// newLookup builds the configured external geocoder. Provider "none"
// returns nil, which resolves every uncached token negatively.
func newLookup(cfg config.GeocoderConfig, logger *slog.Logger) (geocoder.Lookup, error) {
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "mapbox":
		if cfg.MapboxToken == "" {
			return nil, errors.New("geocoder.mapbox_token is required for provider mapbox")
		}
		opts := []geocoder.MapboxOption{
			geocoder.WithHTTPClient(client),
			geocoder.WithMapboxLogger(logger),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, geocoder.WithBaseURL(cfg.BaseURL))
		}
		return geocoder.NewMapbox(cfg.MapboxToken, opts...), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, errors.New("geocoder.google_api_key is required for provider google")
		}
		opts := []maps.ClientOption{maps.WithHTTPClient(client)}
		if cfg.BaseURL != "" {
			opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
		}
		return geocoder.NewGoogle(cfg.GoogleAPIKey, opts...)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown geocoder provider %q", cfg.Provider)
	}
}

// newSource builds the GraphQL source and, when a realtime URL is set, the
// websocket subscriber. A nil subscriber keeps the engine on polling.
func newSource(cfg config.BackendConfig, fetchTimeout time.Duration, logger *slog.Logger) (*transport.HTTPSource, transport.Subscriber) {
	src := transport.NewHTTPSource(cfg.Endpoint, cfg.APIKey, &http.Client{Timeout: fetchTimeout}, logger)
	if cfg.Realtime == "" {
		return src, nil
	}
	return src, transport.NewWSSubscriber(cfg.Realtime, cfg.APIKey, logger)
}

// transportConfig converts the config section to supervisor timings.
func transportConfig(cfg config.TransportConfig) transport.Config {
	return transport.Config{
		PollInterval:       cfg.PollInterval,
		FetchTimeout:       cfg.FetchTimeout,
		SubscribeTimeout:   cfg.SubscribeTimeout,
		ResubscribeInitial: cfg.ResubscribeInitial,
		ResubscribeMax:     cfg.ResubscribeMax,
	}
}
