package cache

import (
	"net/http"
	"time"
)

// RequestSnapshot is the replayable part of an outgoing request.
type RequestSnapshot struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Entry is one slot of a named cache.
type Entry struct {
	// Request is the request the entry is keyed by
	Request RequestSnapshot `json:"request"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code,omitempty"`

	// Headers are the response headers
	Headers http.Header `json:"headers,omitempty"`

	// Data is the response body
	Data []byte `json:"data,omitempty"`

	// CachedAt is when we stored this entry
	CachedAt time.Time `json:"cached_at"`

	// Pending marks a queued mutation: the slot holds a request awaiting
	// replay rather than a cached response.
	Pending bool `json:"pending,omitempty"`
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Request.Header = e.Request.Header.Clone()
	c.Request.Body = cloneBytes(e.Request.Body)
	c.Headers = e.Headers.Clone()
	c.Data = cloneBytes(e.Data)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
