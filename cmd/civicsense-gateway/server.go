package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/metrics"
	"github.com/Sternrassler/civicsense-gateway/pkg/offline"
	"github.com/gorilla/mux"
)

// newRouter serves the gateway endpoints and proxies everything else
// through the offline controller.
func newRouter(a *app, host *offline.Host) (*mux.Router, error) {
	proxy, err := newProxy(a)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler(a)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/_offline/sync", syncHandler(host, a.cfg.Offline.SyncTag)).Methods(http.MethodPost)
	r.HandleFunc("/_offline/status", statusHandler(a)).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(proxy)
	return r, nil
}

// newProxy rewrites incoming requests onto the configured scope so cache
// keys match the precached shell; the controller then reaches the origin.
func newProxy(a *app) (*httputil.ReverseProxy, error) {
	scope, err := url.Parse(a.cfg.Offline.Scope)
	if err != nil || scope.Scheme == "" || scope.Host == "" {
		return nil, fmt.Errorf("offline.scope must be an absolute URL (got %q)", a.cfg.Offline.Scope)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = scope.Scheme
			pr.Out.URL.Host = scope.Host
			pr.Out.Host = ""
			pr.SetXForwarded()
		},
		Transport: a.controller,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			a.logger.Error().Err(err).Str("url", r.URL.String()).Msg("Proxy failed")
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
		},
	}, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the cache storage answers.
func readyHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := a.storage.Names(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// syncHandler dispatches a replay signal and waits for it to settle.
func syncHandler(host *offline.Host, defaultTag string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag := r.URL.Query().Get("tag")
		if tag == "" {
			tag = defaultTag
		}
		sig := offline.SyncSignal(tag)

		select {
		case err := <-host.Dispatch(sig):
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"signal": sig.String(), "error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"signal": sig.String(), "status": "done"})
		case <-r.Context().Done():
			// The sweep keeps running on the host
			writeJSON(w, http.StatusAccepted, map[string]string{"signal": sig.String(), "status": "dispatched"})
		}
	}
}

type statusResponse struct {
	Online      bool      `json:"online"`
	LastChange  time.Time `json:"last_change"`
	Pending     int       `json:"pending"`
	StaticCache string    `json:"static_cache"`
	APICache    string    `json:"api_cache"`
}

// statusHandler reports connectivity and the replay backlog.
func statusHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := a.tracker.State(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		pending, err := a.controller.Pending(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{
			Online:      state.Online,
			LastChange:  state.LastChange,
			Pending:     len(pending),
			StaticCache: a.cfg.Offline.StaticCache,
			APICache:    a.cfg.Offline.APICache,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
