package offline

import (
	"net/http"
	"strings"
)

// Policy answers an intercepted request. It never fails: offline outcomes
// are expressed as responses.
type Policy func(req *http.Request) *http.Response

// Route pairs a predicate with the policy applied to matching requests.
type Route struct {
	Name   string
	Match  func(req *http.Request) bool
	Policy Policy
}

// defaultRoutes builds the routing table, evaluated in order.
func (c *Controller) defaultRoutes() []Route {
	return []Route{
		{
			Name:   "api",
			Match:  c.isAPI,
			Policy: c.networkFirst,
		},
		{
			Name:   "static",
			Match:  func(*http.Request) bool { return true },
			Policy: c.cacheFirst,
		},
	}
}

// route returns the first matching route.
func (c *Controller) route(req *http.Request) Route {
	for _, r := range c.routes {
		if r.Match(req) {
			return r
		}
	}
	// The table ends with a catch-all; reaching here means it was replaced.
	return Route{Name: "static", Policy: c.cacheFirst}
}

func (c *Controller) isAPI(req *http.Request) bool {
	return strings.HasPrefix(req.URL.Path, c.config.APIPrefix)
}

func (c *Controller) isReports(rawURL string) bool {
	return strings.Contains(rawURL, c.config.ReportsPath)
}

func (c *Controller) isQueueable(req *http.Request) bool {
	return c.config.QueueOfflineReports &&
		req.Method == http.MethodPost &&
		c.isReports(req.URL.String())
}
