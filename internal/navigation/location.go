package navigation

import (
	"fmt"
	"net/url"
	"sync"
)

// Location models the address bar: a current URL plus a history stack.
// Replace rewrites the current entry; Assign pushes a new one.
type Location struct {
	mu      sync.RWMutex
	current *url.URL
	history []string
}

// NewLocation creates a location positioned at raw.
func NewLocation(raw string) (*Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", raw, err)
	}

	return &Location{current: u, history: []string{u.String()}}, nil
}

// URL returns a copy of the current URL.
func (l *Location) URL() *url.URL {
	l.mu.RLock()
	defer l.mu.RUnlock()

	u := *l.current
	return &u
}

func (l *Location) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.current.String()
}

// Query returns a query parameter of the current URL.
func (l *Location) Query(key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.current.Query().Get(key)
}

// Resolve resolves ref against the current URL.
func (l *Location) Resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.current.ResolveReference(r), nil
}

// Replace swaps the current entry without growing history.
func (l *Location) Replace(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := *u
	l.current = &next
	l.history[len(l.history)-1] = next.String()
}

// Assign navigates to u, pushing a history entry.
func (l *Location) Assign(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := *u
	l.current = &next
	l.history = append(l.history, next.String())
}

// SetQuery replaces the current entry with key set to value. It reports
// whether the URL changed.
func (l *Location) SetQuery(key, value string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.current.Query()
	if q.Get(key) == value {
		return false
	}
	q.Set(key, value)

	next := *l.current
	next.RawQuery = q.Encode()
	l.current = &next
	l.history[len(l.history)-1] = next.String()
	return true
}

// DeleteQuery removes key from the current entry, replacing it.
func (l *Location) DeleteQuery(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.current.Query()
	if _, ok := q[key]; !ok {
		return false
	}
	q.Del(key)

	next := *l.current
	next.RawQuery = q.Encode()
	l.current = &next
	l.history[len(l.history)-1] = next.String()
	return true
}

// History returns the visited entries, oldest first.
func (l *Location) History() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]string(nil), l.history...)
}
