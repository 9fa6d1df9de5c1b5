package precache

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per asset fetch (0 = none)
	Timeout time.Duration
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// Asset is a fetched shell asset ready to be stored.
type Asset struct {
	Path  string
	Key   cache.Key
	Entry *cache.Entry
}

// Fetcher fetches shell assets through a transport.
type Fetcher struct {
	transport http.RoundTripper
	base      string
	config    Config
	logger    zerolog.Logger
}

// NewFetcher creates a fetcher resolving paths against base
// (e.g. "http://localhost:8080").
func NewFetcher(transport http.RoundTripper, base string, config Config) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}

	return &Fetcher{
		transport: transport,
		base:      strings.TrimRight(base, "/"),
		config:    config,
		logger:    log.With().Str("component", "precache").Logger(),
	}
}

type job struct {
	index int
	path  string
}

type result struct {
	index int
	asset Asset
	err   error
}

// FetchAll fetches every path and returns the assets in input order.
// The first failure cancels the remaining fetches and is returned; no
// partial result is returned in that case.
func (f *Fetcher) FetchAll(ctx context.Context, paths []string) ([]Asset, error) {
	start := time.Now()
	if len(paths) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, len(paths))
	for i, p := range paths {
		jobs <- job{index: i, path: p}
	}
	close(jobs)

	results := make(chan result, len(paths))

	workers := f.config.MaxConcurrency
	if workers > len(paths) {
		workers = len(paths)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go f.worker(ctx, jobs, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	assets := make([]Asset, len(paths))
	var firstErr error
	fetched := 0
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		assets[r.index] = r.asset
		fetched++
	}

	if firstErr == nil && fetched != len(paths) {
		firstErr = fmt.Errorf("precache interrupted: %w", ctx.Err())
	}
	if firstErr != nil {
		f.logger.Warn().
			Err(firstErr).
			Int("fetched", fetched).
			Int("total", len(paths)).
			Msg("Precache failed")
		return nil, firstErr
	}

	f.logger.Info().
		Int("assets", len(assets)).
		Dur("duration", time.Since(start)).
		Msg("Precache complete")

	return assets, nil
}

// worker processes paths from the queue
func (f *Fetcher) worker(ctx context.Context, jobs <-chan job, results chan<- result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for j := range jobs {
		select {
		case <-ctx.Done():
			f.logger.Debug().Int("worker_id", workerID).Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		asset, err := f.fetch(ctx, j.path)
		results <- result{index: j.index, asset: asset, err: err}
	}
}

func (f *Fetcher) fetch(ctx context.Context, path string) (Asset, error) {
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+path, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("precache %s: %w", path, err)
	}

	resp, err := f.transport.RoundTrip(req)
	if err != nil {
		return Asset{}, fmt.Errorf("precache %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Asset{}, fmt.Errorf("precache %s: unexpected status %d", path, resp.StatusCode)
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return Asset{}, fmt.Errorf("precache %s: %w", path, err)
	}
	if entry.Request.URL == "" {
		entry.Request = cache.RequestSnapshot{Method: req.Method, URL: req.URL.String()}
	}

	f.logger.Debug().Str("path", path).Int("bytes", len(entry.Data)).Msg("Fetched shell asset")

	return Asset{
		Path:  path,
		Key:   cache.KeyForRequest(req),
		Entry: entry,
	}, nil
}
