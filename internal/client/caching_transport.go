package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control on
// GET responses. It is used for the server-info, participant and chat
// history endpoints, which the room API marks as cacheable.
func NewCachingHTTPClient(cacheDir string, next http.RoundTripper) *http.Client {
	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		// Use disk-based cache for persistence across runs
		cache = diskcache.New(cacheDir)
	}

	transport := httpcache.NewTransport(cache)
	transport.Transport = next

	return &http.Client{
		Transport: transport,
	}
}
