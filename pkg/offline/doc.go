// Package offline implements the offline controller of the CivicSense
// gateway.
//
// The Controller is an http.RoundTripper placed between the web client and
// the origin. Requests are routed through an ordered table:
//
//   - API requests (path under /api/) go network-first. Successful GETs are
//     cached; when the origin is unreachable the cached copy is served, report
//     submissions are queued for replay (202), the reports listing is answered
//     with an empty synthetic payload, and anything else gets 503 "Offline".
//   - Everything else goes cache-first against the precached shell.
//
// Lifecycle and replay are driven by signals delivered through a Host:
// install precaches the shell, activate deletes stale cache generations, and
// sync:background-sync-reports replays queued submissions.
//
// Usage:
//
//	storage := cache.NewMemoryStorage()
//	origin, _ := upstream.New(upstream.DefaultConfig("https://api.civicsense.app"))
//	ctrl, _ := offline.New(storage, origin, offline.DefaultConfig())
//
//	host := offline.NewHost(ctx, ctrl)
//	if err := host.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	client := &http.Client{Transport: ctrl}
package offline
