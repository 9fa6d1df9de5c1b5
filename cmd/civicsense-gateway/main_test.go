package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sternrassler/civicsense-gateway/internal/config"
	"github.com/Sternrassler/civicsense-gateway/internal/testutil"
	"github.com/Sternrassler/civicsense-gateway/pkg/offline"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cleanup := func() {
		redisC.Terminate(ctx)
	}

	return host + ":" + port.Port(), cleanup
}

// testGateway wires a gateway against origin and serves it.
func testGateway(t *testing.T, cfg config.Config) (*app, *offline.Host, *httptest.Server) {
	t.Helper()
	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	host := offline.NewHost(ctx, a.controller)
	a.tracker.OnReconnect(func(context.Context) {
		host.Dispatch(offline.SyncSignal(cfg.Offline.SyncTag))
	})
	if err := host.Start(); err != nil {
		t.Fatalf("host.Start() error = %v", err)
	}

	router, err := newRouter(a, host)
	if err != nil {
		t.Fatalf("newRouter() error = %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return a, host, srv
}

func testConfig(origin string) config.Config {
	cfg := config.Default()
	cfg.Origin.URL = origin
	cfg.Offline.Scope = "http://civicsense.test"
	return cfg
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestGateway_OfflineFlow(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	_, host, gw := testGateway(t, testConfig(origin.URL()))

	// Online: shell and API pass through
	if resp, body := get(t, gw.URL+"/index.html"); resp.StatusCode != http.StatusOK || !strings.Contains(body, "CivicSense") {
		t.Fatalf("GET /index.html = %d %q", resp.StatusCode, body)
	}
	if resp, _ := get(t, gw.URL+"/api/v1/stats"); resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/v1/stats = %d", resp.StatusCode)
	}

	origin.SetOffline(true)

	// Precached shell
	if resp, body := get(t, gw.URL+"/index.html"); resp.StatusCode != http.StatusOK || !strings.Contains(body, "CivicSense") {
		t.Errorf("offline GET /index.html = %d %q", resp.StatusCode, body)
	}

	// Cached API response
	if resp, body := get(t, gw.URL+"/api/v1/stats"); resp.StatusCode != http.StatusOK || body != `{"status":"ok"}` {
		t.Errorf("offline GET /api/v1/stats = %d %q", resp.StatusCode, body)
	}

	// Synthetic reports listing
	resp, body := get(t, gw.URL+"/api/v1/reports")
	if resp.StatusCode != http.StatusOK || resp.Header.Get(offline.HeaderOfflineSynthesized) != "true" {
		t.Errorf("offline GET /api/v1/reports = %d, synthesized=%q", resp.StatusCode, resp.Header.Get(offline.HeaderOfflineSynthesized))
	}
	if !strings.Contains(body, `"data":[]`) {
		t.Errorf("offline reports body = %q", body)
	}

	// Unknown API
	if resp, body := get(t, gw.URL+"/api/v1/users/me"); resp.StatusCode != http.StatusServiceUnavailable || body != "Offline" {
		t.Errorf("offline GET /api/v1/users/me = %d %q", resp.StatusCode, body)
	}

	// Queued submission
	post, err := http.Post(gw.URL+"/api/v1/reports", "application/json", strings.NewReader(`{"title":"flooded underpass"}`))
	if err != nil {
		t.Fatalf("POST report: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("offline POST /api/v1/reports = %d, want 202", post.StatusCode)
	}

	// Back online: the first successful request triggers the replay
	origin.SetOffline(false)
	if resp, _ := get(t, gw.URL+"/api/v1/stats"); resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/v1/stats after outage = %d", resp.StatusCode)
	}
	host.Wait()

	reports := origin.Reports()
	if len(reports) != 1 {
		t.Fatalf("origin received %d reports, want 1", len(reports))
	}
	if string(reports[0].Body) != `{"title":"flooded underpass"}` {
		t.Errorf("replayed body = %s", reports[0].Body)
	}
	if reports[0].IdempotencyKey == "" {
		t.Error("replayed report carries no Idempotency-Key")
	}

	// Status shows an empty backlog
	resp, body = get(t, gw.URL+"/_offline/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /_offline/status = %d", resp.StatusCode)
	}
	var status statusResponse
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Online || status.Pending != 0 {
		t.Errorf("status = %+v, want online with no pending reports", status)
	}
}

func TestSyncEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	a, _, gw := testGateway(t, testConfig(origin.URL()))

	origin.SetOffline(true)
	post, err := http.Post(gw.URL+"/api/v1/reports", "application/json", strings.NewReader(`{"title":"graffiti"}`))
	if err != nil {
		t.Fatalf("POST report: %v", err)
	}
	post.Body.Close()

	// Manual replay while still offline keeps the entry
	resp, err := http.Post(gw.URL+"/_offline/sync", "", nil)
	if err != nil {
		t.Fatalf("POST /_offline/sync: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("sync status = %d, want 200", resp.StatusCode)
	}
	if pending, _ := a.controller.Pending(context.Background()); len(pending) != 1 {
		t.Errorf("pending = %d after offline sync, want 1", len(pending))
	}

	origin.SetOffline(false)
	resp, err = http.Post(gw.URL+"/_offline/sync?tag="+offline.SyncTagReports, "", nil)
	if err != nil {
		t.Fatalf("POST /_offline/sync: %v", err)
	}
	resp.Body.Close()

	if pending, _ := a.controller.Pending(context.Background()); len(pending) != 0 {
		t.Errorf("pending = %d after sync, want 0", len(pending))
	}
	if n := len(origin.Reports()); n != 1 {
		t.Errorf("origin received %d reports, want 1", n)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	_, _, gw := testGateway(t, testConfig(origin.URL()))
	get(t, gw.URL+"/index.html")

	resp, body := get(t, gw.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if !strings.Contains(body, "# HELP") || !strings.Contains(body, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(body, "civicsense_routed_requests_total") {
		t.Error("Expected metrics output to contain civicsense_routed_requests_total")
	}
	if !strings.Contains(body, "civicsense_online") {
		t.Error("Expected metrics output to contain civicsense_online")
	}
}

func TestReadyEndpoint(t *testing.T) {
	addr, cleanup := setupTestRedis(t)
	defer cleanup()

	origin := testutil.NewMockOrigin()
	defer origin.Close()

	cfg := testConfig(origin.URL())
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = addr

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	handler := readyHandler(a)

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		// Close Redis to simulate failure
		a.redis.Close()

		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = "127.0.0.1:1"

	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Error("expected an error for an unreachable redis")
	}
}

func TestNewApp_LevelDB(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Storage.Backend = config.BackendLevelDB
	cfg.Storage.LevelDB.Path = t.TempDir()

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.redis != nil {
		t.Error("leveldb backend must not create a redis client")
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("version output = %q, want %q", out.String(), version)
	}
}

func TestSyncCmd(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"sync", "--origin", origin.URL(), "--storage", "leveldb"})
	t.Setenv("CIVICSENSE_LEVELDB_PATH", t.TempDir())

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var report offline.SyncReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report %q: %v", out.String(), err)
	}
	if report != (offline.SyncReport{}) {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestLoadConfig_InvalidFlag(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"activate", "--storage", "sqlite"})

	if err := root.Execute(); err == nil {
		t.Error("expected an error for an unknown storage backend")
	}
}
