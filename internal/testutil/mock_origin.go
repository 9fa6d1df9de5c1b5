// Package testutil provides testing utilities for the CivicSense gateway.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Report is a report accepted by the mock origin.
type Report struct {
	ID             int             `json:"id"`
	Body           json.RawMessage `json:"body"`
	IdempotencyKey string          `json:"-"`
}

// MockOrigin is a configurable CivicSense origin for testing. By default it
// serves the app shell and a reports API (GET lists, POST creates).
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	offline  bool
	reports  []Report

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Paths             []string
}

// NewMockOrigin creates a new mock origin server.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		offline := mock.offline
		if !offline {
			mock.RequestCount++
			mock.LastRequestHeader = r.Header.Clone()
			mock.Paths = append(mock.Paths, r.Method+" "+r.URL.Path)
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if offline {
			dropConnection(w)
			return
		}

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// dropConnection closes the connection without a response, so clients see
// a network error rather than an HTTP status.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("testutil: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// SetOffline makes every request fail at the connection level.
func (m *MockOrigin) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
	if offline {
		// Drop idle keep-alive connections so the outage is seen immediately
		m.server.CloseClientConnections()
	}
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Paths = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests that reached the server.
func (m *MockOrigin) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Reports returns the reports created so far.
func (m *MockOrigin) Reports() []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Report(nil), m.reports...)
}

// defaultHandler serves the shell and the reports API.
func (m *MockOrigin) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/reports" && r.Method == http.MethodGet:
		m.listReports(w)
	case r.URL.Path == "/api/v1/reports" && r.Method == http.MethodPost:
		m.createReport(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/"):
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	case r.URL.Path == "/manifest.json":
		w.Header().Set("Content-Type", "application/manifest+json")
		w.Write([]byte(`{"name":"CivicSense","start_url":"/"}`))
	case r.URL.Path == "/favicon.ico":
		w.Header().Set("Content-Type", "image/x-icon")
		w.Write([]byte{0, 0, 1, 0})
	case r.URL.Path == "/" || strings.HasSuffix(r.URL.Path, ".html"):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!doctype html><title>CivicSense</title>`))
	default:
		http.NotFound(w, r)
	}
}

func (m *MockOrigin) listReports(w http.ResponseWriter) {
	m.mu.RLock()
	data := append([]Report{}, m.reports...)
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

// createReport stores the body; a repeated Idempotency-Key returns the
// existing report.
func (m *MockOrigin) createReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, `{"error":"invalid report"}`, http.StatusBadRequest)
		return
	}
	key := r.Header.Get("Idempotency-Key")

	m.mu.Lock()
	var report Report
	found := false
	if key != "" {
		for _, existing := range m.reports {
			if existing.IdempotencyKey == key {
				report, found = existing, true
				break
			}
		}
	}
	if !found {
		report = Report{ID: len(m.reports) + 1, Body: body, IdempotencyKey: key}
		m.reports = append(m.reports, report)
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if found {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(report)
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}
