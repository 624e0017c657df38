package client

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/logger"
)

// Config holds common client configuration
type Config struct {
	Timeout time.Duration

	// StateDir holds the cookie jar and the HTTP cache. Empty keeps both in
	// memory.
	StateDir string
}

// Clients holds the HTTP clients shared by the API packages. Both share one
// cookie jar so the refresh cookie set at login is sent on refresh.
type Clients struct {
	HTTP    *http.Client
	Caching *http.Client
	Jar     *Jar
}

// NewClients creates the HTTP clients with the given configuration
func NewClients(config Config) (*Clients, error) {
	jarPath := ""
	cacheDir := ""
	if config.StateDir != "" {
		jarPath = filepath.Join(config.StateDir, "cookies.json")
		cacheDir = filepath.Join(config.StateDir, "cache")
	}

	jar, err := NewJar(jarPath)
	if err != nil {
		return nil, err
	}

	transport := newTransport()

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		Jar:       jar,
	}

	caching := NewCachingHTTPClient(cacheDir, transport)
	caching.Timeout = config.Timeout
	caching.Jar = jar

	return &Clients{
		HTTP:    httpClient,
		Caching: caching,
		Jar:     jar,
	}, nil
}

// newTransport layers request logging over transparent gzip handling.
func newTransport() http.RoundTripper {
	return logger.NewLoggingTransport(log.Logger, gzhttp.Transport(http.DefaultTransport))
}
