package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Key identifies a cached request.
type Key struct {
	// Method is the HTTP method (e.g., "GET", "POST")
	Method string

	// URL is the absolute request URL
	URL string

	// ID distinguishes entries that share method and URL.
	// Empty for cached GET responses; set for pending mutations.
	ID string
}

// KeyForRequest returns the cache key of an outgoing request.
func KeyForRequest(req *http.Request) Key {
	return Key{
		Method: req.Method,
		URL:    req.URL.String(),
	}
}

// String generates a deterministic cache key string.
// Format: METHOD url[#id]
//
// The URL is normalized: the fragment is dropped and query parameters are
// sorted, so "?b=2&a=1" and "?a=1&b=2" produce the same key.
//
// Example:
//
//	GET https://civicsense.app/api/v1/reports?limit=20&page=1
//	POST https://civicsense.app/api/v1/reports#6f1c...
func (k Key) String() string {
	method := strings.ToUpper(strings.TrimSpace(k.Method))
	if method == "" {
		method = http.MethodGet
	}

	s := method + " " + normalizeURL(k.URL)
	if k.ID != "" {
		s += "#" + k.ID
	}
	return s
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	method, rest, ok := strings.Cut(s, " ")
	if !ok || method == "" || rest == "" {
		return Key{}, fmt.Errorf("malformed cache key %q", s)
	}

	k := Key{Method: method, URL: rest}
	if i := strings.LastIndex(rest, "#"); i >= 0 {
		k.URL = rest[:i]
		k.ID = rest[i+1:]
	}
	return k, nil
}

// Path returns the URL path of the key, or "" if the URL does not parse.
func (k Key) Path() string {
	u, err := url.Parse(k.URL)
	if err != nil {
		return ""
	}
	return u.Path
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		// Encode sorts by key
		u.RawQuery = u.Query().Encode()
	}
	return u.String()
}
