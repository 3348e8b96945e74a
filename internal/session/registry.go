package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/logging"
	"github.com/valpere/legtrans/internal/metrics"
	"github.com/valpere/legtrans/internal/notify"
	"github.com/valpere/legtrans/internal/translator"
	"github.com/valpere/legtrans/internal/urlstate"
)

// Session bundles a controller with its location and the feeds the HTTP
// layer streams to clients.
type Session struct {
	ID            string
	Controller    *Controller
	Location      *urlstate.Location
	Notifications *notify.Broadcaster
	States        *Feed

	lastActive atomic.Int64
}

// Touch marks the session active, postponing its expiry.
func (s *Session) Touch() { s.touch(time.Now()) }

func (s *Session) touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

// idle reports whether nobody has used or watched s since before cutoff.
func (s *Session) idle(cutoff time.Time) bool {
	return s.States.Subscribers() == 0 && s.lastActive.Load() < cutoff.UnixNano()
}

// ErrTooManySessions is returned by Create and Resume once the session cap
// is reached.
var ErrTooManySessions = errors.New("too many open sessions")

// Registry owns the live sessions of a process.
type Registry struct {
	connector translator.Connector
	store     urlstate.Store
	sink      notify.Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      []Option

	idleTimeout time.Duration
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

type RegistryOption func(*Registry)

// WithStore sets where session locations are persisted.
func WithStore(store urlstate.Store) RegistryOption {
	return func(r *Registry) { r.store = store }
}

// WithErrorSink adds a sink that sees the notifications of every session.
func WithErrorSink(sink notify.Sink) RegistryOption {
	return func(r *Registry) { r.sink = sink }
}

func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithIdleTimeout lets Run close sessions that have had no requests and no
// event subscribers for d. Zero keeps sessions until they are closed.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithMaxSessions caps the number of open sessions. Zero means no cap.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) { r.maxSessions = n }
}

// WithSessionOptions sets options applied to every controller created.
func WithSessionOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

func NewRegistry(connector translator.Connector, opts ...RegistryOption) *Registry {
	r := &Registry{
		connector: connector,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = urlstate.NewMemoryStore()
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	return r
}

// Create opens a session whose location starts out as rawLocation, for
// example "/?text=bonjour&sl=fr&tl=ar". The pair is read from the sl and tl
// keys when both name supported languages.
func (r *Registry) Create(ctx context.Context, rawLocation string) (*Session, error) {
	path, query, err := urlstate.ParseLocation(rawLocation)
	if err != nil {
		return nil, err
	}

	if r.full() {
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	loc, err := urlstate.NewLocation(ctx, r.store, id, path, query)
	if err != nil {
		return nil, err
	}
	return r.open(id, loc, query)
}

// Resume reopens the session id from its persisted location, for example
// after the process restarted or the session expired. A session that is
// still open is returned as is.
func (r *Registry) Resume(ctx context.Context, id string) (*Session, error) {
	if s, err := r.Get(id); err == nil {
		return s, nil
	}
	if r.full() {
		return nil, ErrTooManySessions
	}

	loc, err := urlstate.Resume(ctx, r.store, id, "/")
	if errors.Is(err, urlstate.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.open(id, loc, loc.Query())
}

func (r *Registry) full() bool {
	return r.maxSessions > 0 && r.Len() >= r.maxSessions
}

func (r *Registry) open(id string, loc *urlstate.Location, query url.Values) (*Session, error) {
	pair := pairFrom(query)
	s := &Session{
		ID:            id,
		Location:      loc,
		Notifications: notify.NewBroadcaster(16),
		States:        NewFeed(16),
	}

	var sink notify.Sink = s.Notifications
	if r.sink != nil {
		sink = notify.Multi(s.Notifications, r.sink)
	}

	opts := append([]Option{
		WithLogger(r.logger),
		WithMetrics(r.metrics),
		WithPair(pair),
	}, r.opts...)
	opts = append(opts, WithSink(sink), WithObserver(s.States.Publish))
	s.touch(time.Now())

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		// Concurrent Resume of the same id.
		r.mu.Unlock()
		return existing, nil
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, ErrTooManySessions
	}
	s.Controller = New(id, r.connector, loc, opts...)
	r.sessions[id] = s
	r.mu.Unlock()

	r.metrics.SessionOpened()
	r.logger.Info("session opened", "session", id, "pair", pair.String())
	return s, nil
}

// Get returns an open session and marks it active.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(time.Now())
	return s, nil
}

// SetLanguagePair switches the pair of a session and mirrors it into the
// location.
func (r *Registry) SetLanguagePair(id string, p language.Pair) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := s.Controller.SetLanguagePair(p); err != nil {
		return err
	}
	if err := s.Location.Write(language.KeyFrom, p.From); err != nil {
		return err
	}
	return s.Location.Write(language.KeyTo, p.To)
}

// Close tears a session down and forgets its location.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	r.shutdown(s)
	return s.Location.Forget(ctx)
}

// CloseAll tears every session down. Locations are kept so that a restarted
// process backed by a shared store can still read them.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		r.shutdown(s)
	}
}

// Reap closes every session idle since before now minus the idle timeout
// and returns their IDs. Locations are kept so the sessions can be resumed.
func (r *Registry) Reap(now time.Time) []string {
	if r.idleTimeout <= 0 {
		return nil
	}
	cutoff := now.Add(-r.idleTimeout)

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idle(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		r.logger.Info("session expired", "session", s.ID, "idle_timeout", r.idleTimeout)
		r.shutdown(s)
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// Run reaps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(max(r.idleTimeout/2, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Reap(now)
		}
	}
}

// IDs lists the open sessions in a stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) shutdown(s *Session) {
	s.Controller.Close()
	s.States.Close()
	r.metrics.SessionClosed()
	r.logger.Info("session closed", "session", s.ID)
}

func pairFrom(query url.Values) language.Pair {
	from, to := query.Get(language.KeyFrom), query.Get(language.KeyTo)
	if from == "" && to == "" {
		return language.DefaultPair()
	}
	p, err := language.ParsePair(from, to)
	if err != nil {
		return language.DefaultPair()
	}
	return p
}
