package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/cache"
	"github.com/google/uuid"
)

// Response headers set on answers produced without the origin.
const (
	HeaderOfflineSynthesized = "X-Offline-Synthesized"
	HeaderOfflineQueued      = "X-Offline-Queued"
	HeaderIdempotencyKey     = "Idempotency-Key"
)

// ReportsPayload is the synthetic reports listing served offline.
type ReportsPayload struct {
	Data    []json.RawMessage `json:"data"`
	Message string            `json:"message"`
}

// QueuedPayload acknowledges a report submission stored for replay.
type QueuedPayload struct {
	Queued  bool   `json:"queued"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// offlineReports returns the empty reports listing. The status is 200 so
// existing clients render it; HeaderOfflineSynthesized marks it.
func (c *Controller) offlineReports(req *http.Request) *http.Response {
	body, _ := json.Marshal(ReportsPayload{
		Data:    []json.RawMessage{},
		Message: c.config.OfflineMessage,
	})
	resp := newResponse(req, http.StatusOK, "application/json", body)
	resp.Header.Set(HeaderOfflineSynthesized, "true")
	return resp
}

// unavailable is the terminal offline answer.
func unavailable(req *http.Request) *http.Response {
	return newResponse(req, http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("Offline"))
}

// queue stores a report submission as a pending entry in the API cache and
// acknowledges it with 202. It reports false if the entry could not be
// stored, in which case the caller falls through to the regular fallbacks.
func (c *Controller) queue(ctx context.Context, req *http.Request, snap cache.RequestSnapshot) (*http.Response, bool) {
	id := uuid.NewString()

	if snap.Header == nil {
		snap.Header = http.Header{}
	}
	if snap.Header.Get(HeaderIdempotencyKey) == "" {
		snap.Header.Set(HeaderIdempotencyKey, id)
	}

	key := cache.Key{Method: snap.Method, URL: snap.URL, ID: id}
	entry := &cache.Entry{
		Request:  snap,
		CachedAt: time.Now(),
		Pending:  true,
	}

	store, err := c.open(ctx, c.config.APICache)
	if err == nil {
		// Detached: a client disconnect must not lose the submission
		err = store.Put(context.WithoutCancel(ctx), key.String(), entry)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("url", snap.URL).Msg("Failed to queue report for replay")
		return nil, false
	}

	offlineResponsesTotal.WithLabelValues(kindQueued).Inc()
	c.logger.Info().Str("id", id).Str("url", snap.URL).Int("bytes", len(snap.Body)).Msg("Queued report for replay")

	body, _ := json.Marshal(QueuedPayload{
		Queued:  true,
		ID:      id,
		Message: DefaultQueuedMessage,
	})
	resp := newResponse(req, http.StatusAccepted, "application/json", body)
	resp.Header.Set(HeaderOfflineSynthesized, "true")
	resp.Header.Set(HeaderOfflineQueued, id)
	return resp, true
}

func newResponse(req *http.Request, status int, contentType string, body []byte) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
