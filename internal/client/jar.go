package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

var _ http.CookieJar = (*Jar)(nil)

// storedCookie is the on-disk form of a cookie. net/http/cookiejar does not
// expose its entries, so the jar records what it was given.
type storedCookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (c storedCookie) key() string {
	u, _ := url.Parse(c.URL)
	host := ""
	if u != nil {
		host = u.Hostname()
	}
	return host + "|" + c.Domain + "|" + c.Path + "|" + c.Name
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// Jar is a cookie jar persisted to a file so the server-held refresh
// credential survives between runs. Session cookies are persisted as well;
// a run of the CLI is not a browser session.
type Jar struct {
	jar  *cookiejar.Jar
	path string

	mu      sync.Mutex
	entries map[string]storedCookie
}

// NewJar creates a cookie jar. If path is empty the jar lives in memory.
func NewJar(path string) (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j := &Jar{
		jar:     inner,
		path:    path,
		entries: make(map[string]storedCookie),
	}

	j.load()

	return j, nil
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()

	for _, c := range cookies {
		sc := storedCookie{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}

		switch {
		case c.MaxAge < 0:
			sc.Expires = now.Add(-time.Second)
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		if sc.expired(now) {
			delete(j.entries, sc.key())
			continue
		}
		j.entries[sc.key()] = sc
	}

	if err := j.save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist cookies")
	}
}

// load replays persisted cookies into the jar. A missing or corrupt file
// leaves the jar empty.
func (j *Jar) load() {
	if j.path == "" {
		return
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debug().Err(err).Msg("failed to read cookie file")
		}
		return
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		log.Debug().Err(err).Msg("cookie file is corrupt, ignoring")
		return
	}

	now := time.Now()
	for _, sc := range stored {
		if sc.expired(now) {
			continue
		}

		u, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}

		j.jar.SetCookies(u, []*http.Cookie{{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Domain:   sc.Domain,
			Expires:  sc.Expires,
			Secure:   sc.Secure,
			HttpOnly: sc.HttpOnly,
		}})
		j.entries[sc.key()] = sc
	}

	log.Debug().Int("count", len(j.entries)).Msg("cookies loaded")
}

// save writes the cookie file atomically. Callers hold j.mu.
func (j *Jar) save() error {
	if j.path == "" {
		return nil
	}

	stored := make([]storedCookie, 0, len(j.entries))
	for _, sc := range j.entries {
		stored = append(stored, sc)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tempPath := j.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookies: %w", err)
	}

	if err := os.Rename(tempPath, j.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	return nil
}
