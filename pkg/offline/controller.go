package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/cache"
	"github.com/Sternrassler/civicsense-gateway/pkg/logging"
	"github.com/Sternrassler/civicsense-gateway/pkg/precache"
	"github.com/Sternrassler/civicsense-gateway/pkg/upstream"
	"github.com/rs/zerolog"
)

// ErrInstallFailed is returned when the shell assets could not be precached.
var ErrInstallFailed = errors.New("install failed")

// Observer is told about the outcome of every network attempt.
// connectivity.Tracker implements it.
type Observer interface {
	RecordSuccess(ctx context.Context)
	RecordFailure(ctx context.Context, err error)
}

// Controller is an http.RoundTripper that answers requests through the
// routing table: API requests network-first with offline fallbacks,
// everything else cache-first.
type Controller struct {
	storage  cache.Storage
	network  http.RoundTripper
	config   Config
	precache *precache.Fetcher
	routes   []Route
	logger   zerolog.Logger

	observer Observer

	storesMu sync.Mutex
	stores   map[string]cache.Store

	// syncMu serialises replay sweeps.
	syncMu sync.Mutex
}

// New creates a controller storing into storage and forwarding to network.
func New(storage cache.Storage, network http.RoundTripper, config Config) (*Controller, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if network == nil {
		return nil, fmt.Errorf("network transport cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid offline config: %w", err)
	}

	c := &Controller{
		storage:  storage,
		network:  network,
		config:   config,
		precache: precache.NewFetcher(network, config.Scope, precache.DefaultConfig()),
		logger:   logging.NewLogger(logging.ComponentController),
		stores:   make(map[string]cache.Store),
	}
	c.routes = c.defaultRoutes()
	return c, nil
}

// SetObserver registers the connectivity observer (optional).
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

// SetPrecacheConfig replaces the install fetcher configuration.
func (c *Controller) SetPrecacheConfig(cfg precache.Config) {
	c.precache = precache.NewFetcher(c.network, c.config.Scope, cfg)
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Install precaches the shell assets into the static cache.
// It is all-or-nothing: if any asset fails, nothing is stored and the
// returned error wraps ErrInstallFailed.
func (c *Controller) Install(ctx context.Context) error {
	start := time.Now()

	assets, err := c.precache.FetchAll(ctx, c.config.ShellAssets)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	store, err := c.open(ctx, c.config.StaticCache)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	for _, a := range assets {
		if err := store.Put(ctx, a.Key.String(), a.Entry); err != nil {
			return fmt.Errorf("%w: store %s: %v", ErrInstallFailed, a.Path, err)
		}
	}

	c.logger.Info().
		Str("cache", c.config.StaticCache).
		Int("assets", len(assets)).
		Dur("duration", time.Since(start)).
		Msg("Installed shell assets")
	return nil
}

// Activate deletes every cache generation other than the current static
// and API caches and returns the deleted names. Deletion continues past
// individual failures; those are joined into the returned error.
func (c *Controller) Activate(ctx context.Context) ([]string, error) {
	names, err := c.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}

	current := []string{c.config.StaticCache, c.config.APICache}
	var deleted []string
	var errs []error
	for _, name := range names {
		if slices.Contains(current, name) {
			continue
		}
		if err := c.storage.Drop(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("drop %s: %w", name, err))
			continue
		}
		c.forget(name)
		cache.GenerationsPurged.Inc()
		deleted = append(deleted, name)
		c.logger.Info().Str("cache", name).Msg("Deleted stale cache generation")
	}

	c.logger.Info().Strs("deleted", deleted).Msg("Activated")
	return deleted, errors.Join(errs...)
}

// RoundTrip implements http.RoundTripper. Offline outcomes are answered
// with responses; the error is always nil.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	route := c.route(req)
	routedTotal.WithLabelValues(route.Name).Inc()
	return route.Policy(req), nil
}

// networkFirst forwards to the network and falls back to the API cache,
// the offline queue, or a synthetic response when the origin is unreachable.
func (c *Controller) networkFirst(req *http.Request) *http.Response {
	ctx := req.Context()
	key := cache.KeyForRequest(req)

	// The body is captured before the network consumes it.
	var snap *cache.RequestSnapshot
	if c.isQueueable(req) {
		s, err := cache.SnapshotRequest(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Cannot capture report body for queueing")
		} else {
			snap = &s
		}
	}

	resp, err := c.network.RoundTrip(req)
	if err == nil {
		c.observeSuccess(ctx)
		if req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
			c.store(ctx, c.config.APICache, key, req, resp)
		}
		return resp
	}

	if ctx.Err() != nil {
		// The caller gave up; the origin may still be processing the request
		c.logger.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("API request abandoned by caller")
		return unavailable(req)
	}

	c.observeFailure(ctx, err)
	c.logger.Debug().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("Network failed for API request")

	if snap != nil {
		if resp, ok := c.queue(ctx, req, *snap); ok {
			return resp
		}
	}

	if entry, ok := c.lookup(ctx, key, c.config.APICache); ok {
		offlineResponsesTotal.WithLabelValues(kindCached).Inc()
		return cache.EntryToResponse(entry, req)
	}

	if c.isReports(req.URL.String()) {
		offlineResponsesTotal.WithLabelValues(kindSynthetic).Inc()
		return c.offlineReports(req)
	}

	offlineResponsesTotal.WithLabelValues(kindUnavailable).Inc()
	return unavailable(req)
}

// cacheFirst answers from any current cache and fetches on miss.
func (c *Controller) cacheFirst(req *http.Request) *http.Response {
	ctx := req.Context()
	key := cache.KeyForRequest(req)

	if entry, ok := c.lookup(ctx, key, c.config.StaticCache, c.config.APICache); ok {
		return cache.EntryToResponse(entry, req)
	}

	resp, err := c.network.RoundTrip(req)
	if err != nil {
		if ctx.Err() == nil {
			c.observeFailure(ctx, err)
		}
		c.logger.Debug().Err(err).Str("url", req.URL.String()).Msg("Static asset unavailable offline")
		offlineResponsesTotal.WithLabelValues(kindUnavailable).Inc()
		return unavailable(req)
	}

	c.observeSuccess(ctx)
	if req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		c.store(ctx, c.config.StaticCache, key, req, resp)
	}
	return resp
}

// lookup returns the first entry found for key, searching names in order.
// Storage errors count as misses.
func (c *Controller) lookup(ctx context.Context, key cache.Key, names ...string) (*cache.Entry, bool) {
	k := key.String()
	for _, name := range names {
		store, err := c.open(ctx, name)
		if err != nil {
			c.logger.Warn().Err(err).Str("cache", name).Msg("Cannot open cache")
			continue
		}

		entry, err := store.Get(ctx, k)
		if err == nil {
			cache.CacheHits.WithLabelValues(name).Inc()
			return entry, true
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("cache", name).Str("key", k).Msg("Cache read failed")
		}
	}

	for _, name := range names {
		cache.CacheMisses.WithLabelValues(name).Inc()
	}
	return nil, false
}

// store writes a successful response to the named cache before the response
// is handed back. Failures are logged and do not affect the response.
// Bodies above MaxEntryBytes are passed through uncached.
func (c *Controller) store(ctx context.Context, name string, key cache.Key, req *http.Request, resp *http.Response) {
	entry, err := cache.ResponseToEntryLimit(resp, c.config.MaxEntryBytes)
	if errors.Is(err, cache.ErrEntryTooLarge) {
		c.logger.Debug().Str("url", req.URL.String()).Int64("limit", c.config.MaxEntryBytes).Msg("Response too large to cache")
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Cannot buffer response for caching")
		return
	}
	entry.Request = cache.RequestSnapshot{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
	}

	store, err := c.open(ctx, name)
	if err == nil {
		err = store.Put(ctx, key.String(), entry)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("cache", name).Str("key", key.String()).Msg("Cache write failed")
	}
}

// open returns the named cache, opening it once per controller.
func (c *Controller) open(ctx context.Context, name string) (cache.Store, error) {
	c.storesMu.Lock()
	defer c.storesMu.Unlock()

	if s, ok := c.stores[name]; ok {
		return s, nil
	}
	s, err := c.storage.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	c.stores[name] = s
	return s, nil
}

func (c *Controller) forget(name string) {
	c.storesMu.Lock()
	delete(c.stores, name)
	c.storesMu.Unlock()
}

func (c *Controller) observeSuccess(ctx context.Context) {
	if c.observer != nil {
		c.observer.RecordSuccess(ctx)
	}
}

func (c *Controller) observeFailure(ctx context.Context, err error) {
	if c.observer != nil && upstream.IsNetworkError(err) {
		c.observer.RecordFailure(ctx, err)
	}
}
