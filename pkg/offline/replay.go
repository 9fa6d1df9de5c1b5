package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/cache"
)

// SyncReport summarises one replay sweep.
type SyncReport struct {
	Attempted int `json:"attempted"`
	Replayed  int `json:"replayed"`
	Failed    int `json:"failed"`
}

// Pending lists the keys of queued report submissions.
func (c *Controller) Pending(ctx context.Context) ([]string, error) {
	store, err := c.open(ctx, c.config.APICache)
	if err != nil {
		return nil, err
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.config.APICache, err)
	}

	var pending []string
	for _, k := range keys {
		if c.isPendingKey(k) {
			pending = append(pending, k)
		}
	}
	return pending, nil
}

func (c *Controller) isPendingKey(raw string) bool {
	k, err := cache.ParseKey(raw)
	if err != nil {
		return false
	}
	return k.Method == http.MethodPost && c.isReports(k.URL)
}

// Sync replays queued report submissions when tag is the configured sync
// tag; other tags are ignored. Each entry is sent once: any HTTP response,
// whatever its status, removes it; a network failure keeps it for the next
// sweep. Per-entry failures are logged and counted, never returned.
// Sweeps are serialised.
func (c *Controller) Sync(ctx context.Context, tag string) (SyncReport, error) {
	var report SyncReport
	if tag != c.config.SyncTag {
		c.logger.Debug().Str("tag", tag).Msg("Ignoring unknown sync tag")
		return report, nil
	}

	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	start := time.Now()

	pending, err := c.Pending(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Background sync failed")
		return report, err
	}
	if len(pending) == 0 {
		return report, nil
	}

	store, err := c.open(ctx, c.config.APICache)
	if err != nil {
		c.logger.Error().Err(err).Msg("Background sync failed")
		return report, err
	}

	for _, key := range pending {
		if ctx.Err() != nil {
			break
		}

		entry, err := store.Get(ctx, key)
		if err != nil {
			// Removed by a concurrent sweep on another instance.
			c.logger.Debug().Err(err).Str("key", key).Msg("Pending entry vanished")
			continue
		}

		report.Attempted++
		if c.replay(ctx, store, key, entry) {
			report.Replayed++
			replayTotal.WithLabelValues("replayed").Inc()
		} else {
			report.Failed++
			replayTotal.WithLabelValues("failed").Inc()
		}
	}

	c.logger.Info().
		Int("attempted", report.Attempted).
		Int("replayed", report.Replayed).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Background sync complete")

	return report, nil
}

// replay sends one pending entry and removes it on any response.
func (c *Controller) replay(ctx context.Context, store cache.Store, key string, entry *cache.Entry) bool {
	req, err := entry.Request.NewRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("Failed to sync report")
		return false
	}

	resp, err := c.network.RoundTrip(req)
	if err != nil {
		if ctx.Err() == nil {
			c.observeFailure(ctx, err)
		}
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to sync report")
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.observeSuccess(ctx)

	if err := store.Delete(ctx, key); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("Replayed report could not be removed from queue")
		return false
	}

	c.logger.Info().
		Str("key", key).
		Int("status", resp.StatusCode).
		Str("idempotency_key", entry.Request.Header.Get(HeaderIdempotencyKey)).
		Msg("Replayed queued report")
	return true
}
