// Package precache fetches the application shell in parallel at install time.
//
// Shell assets are the minimal set of files needed to render the application
// without a network connection. Installation is all-or-nothing: if any asset
// cannot be fetched with a 200 response the whole batch fails and nothing
// should be stored.
//
// Example usage:
//
//	fetcher := precache.NewFetcher(upstreamClient, "http://localhost:8080", precache.DefaultConfig())
//	assets, err := fetcher.FetchAll(ctx, []string{"/", "/index.html", "/manifest.json", "/favicon.ico"})
//
// The fetcher:
//   - Spawns a worker pool (default 4 workers)
//   - Distributes manifest paths across workers
//   - Cancels outstanding fetches on the first failure
//   - Returns assets in manifest order
package precache
