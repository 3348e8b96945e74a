// Package urlstate mirrors session state into the query string of a
// navigable location. Writes replace the current location; they never add
// a history entry.
package urlstate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// ErrNotFound is returned by Resume when nothing is stored for the id.
var ErrNotFound = errors.New("location not found")

// Store persists the query state of each session's location.
type Store interface {
	Load(ctx context.Context, id string) (url.Values, error)
	Save(ctx context.Context, id string, query url.Values) error
	Delete(ctx context.Context, id string) error
}

// Location is the current location of one session.
type Location struct {
	mu           sync.Mutex
	id           string
	path         string
	query        url.Values
	store        Store
	timeout      time.Duration
	replacements int
}

// ParseLocation splits a relative or absolute URL into its path and query.
// An empty path becomes "/".
func ParseLocation(raw string) (string, url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid location %q: %w", raw, err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return path, u.Query(), nil
}

// NewLocation creates the location of session id at path with the initial
// query and persists it.
func NewLocation(ctx context.Context, store Store, id, path string, initial url.Values) (*Location, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	if path == "" {
		path = "/"
	}
	l := &Location{
		id:      id,
		path:    path,
		query:   cloneValues(initial),
		store:   store,
		timeout: 5 * time.Second,
	}
	if err := store.Save(ctx, id, l.query); err != nil {
		return nil, fmt.Errorf("failed to save location: %w", err)
	}
	return l, nil
}

// Resume rebuilds the location of session id at path from store. An id
// whose stored query is empty or missing reports ErrNotFound.
func Resume(ctx context.Context, store Store, id, path string) (*Location, error) {
	query, err := store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	if len(query) == 0 {
		return nil, ErrNotFound
	}
	if path == "" {
		path = "/"
	}
	return &Location{
		id:      id,
		path:    path,
		query:   query,
		store:   store,
		timeout: 5 * time.Second,
	}, nil
}

// Read returns the first value of key.
func (l *Location) Read(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.query.Has(key) {
		return "", false
	}
	return l.query.Get(key), true
}

// Write sets key to value. Writing the value already present is a no-op.
func (l *Location) Write(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if vals, ok := l.query[key]; ok && len(vals) == 1 && vals[0] == value {
		return nil
	}
	next := cloneValues(l.query)
	next.Set(key, value)
	return l.replace(next)
}

// Delete removes key. Deleting an absent key is a no-op.
func (l *Location) Delete(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.query.Has(key) {
		return nil
	}
	next := cloneValues(l.query)
	next.Del(key)
	return l.replace(next)
}

// replace persists next and makes it current. l.mu must be held.
func (l *Location) replace(next url.Values) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if err := l.store.Save(ctx, l.id, next); err != nil {
		return fmt.Errorf("failed to replace location: %w", err)
	}
	l.query = next
	l.replacements++
	return nil
}

// String renders the location as path?query.
func (l *Location) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.query) == 0 {
		return l.path
	}
	return l.path + "?" + l.query.Encode()
}

// Query returns a copy of the current query.
func (l *Location) Query() url.Values {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.query)
}

// Replacements counts the writes that changed the location.
func (l *Location) Replacements() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replacements
}

// Forget removes the persisted state.
func (l *Location) Forget(ctx context.Context) error {
	return l.store.Delete(ctx, l.id)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
