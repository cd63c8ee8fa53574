package session

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity bounds the number of live sessions.
	DefaultCapacity = 1000
	// DefaultIdleTimeout removes sessions that saw no traffic for this long.
	DefaultIdleTimeout = 15000 * time.Millisecond
	// DefaultSweepInterval is how often the janitor looks for idle sessions.
	DefaultSweepInterval = time.Second
)

var (
	// ErrVetoed indicates a new-session hook refused the session.
	ErrVetoed = errors.New("session: creation vetoed")
	// ErrClosed indicates the registry has been closed.
	ErrClosed = errors.New("session: registry closed")
	// ErrInvalidTransition indicates a state change that would move backwards.
	ErrInvalidTransition = errors.New("session: invalid state transition")
	// ErrNoSender indicates a session without a transport.
	ErrNoSender = errors.New("session: no sender")
	// ErrFragment indicates a fragment that cannot be buffered.
	ErrFragment = errors.New("session: invalid fragment")
)

// NewSessionHook inspects a session before it is stored. Returning false
// vetoes it.
type NewSessionHook func(s *Session) bool

// RemovalHook is told about every session leaving the registry, exactly once.
type RemovalHook func(s *Session)

// Config holds the registry settings. Zero values select the defaults.
type Config struct {
	Capacity      int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Sender        Sender
	Clock         Clock
	Logger        logrus.FieldLogger
}

// Registry stores at most one session per endpoint pair, bounded in size
// and expiring sessions that stay idle.
//
// Hooks run without the registry lock held but must not block for long:
// they run on the goroutine that caused the change.
type Registry struct {
	cfg    Config
	logger logrus.FieldLogger

	mu           sync.Mutex
	cache        *lru.Cache[EndpointPair, *Session]
	removed      []*Session
	newHooks     []NewSessionHook
	removalHooks []RemovalHook
	closed       bool
	done         chan struct{}
}

// NewRegistry builds a registry from cfg.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}

	r := &Registry{
		cfg:    cfg,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
	cache, err := lru.NewWithEvict[EndpointPair, *Session](cfg.Capacity, r.onEvicted)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// onEvicted runs inside every cache call that drops an entry, which the
// registry only makes with r.mu held.
func (r *Registry) onEvicted(_ EndpointPair, s *Session) {
	r.removed = append(r.removed, s)
}

// OnNewSession adds a hook consulted before a session is created.
func (r *Registry) OnNewSession(h NewSessionHook) {
	r.mu.Lock()
	r.newHooks = append(r.newHooks, h)
	r.mu.Unlock()
}

// OnRemoval adds a hook told about removed sessions.
func (r *Registry) OnRemoval(h RemovalHook) {
	r.mu.Lock()
	r.removalHooks = append(r.removalHooks, h)
	r.mu.Unlock()
}

func (r *Registry) expired(s *Session) bool {
	return s.IdleFor(r.cfg.Clock.Now()) >= r.cfg.IdleTimeout
}

// lookup returns the live session for key, dropping it if it expired.
// Callers hold r.mu.
func (r *Registry) lookup(key EndpointPair) (*Session, bool) {
	s, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	if r.expired(s) {
		r.cache.Remove(key)
		return nil, false
	}
	s.Touch()
	return s, true
}

// GetOrCreate returns the session for the pair, creating it when absent.
// Concurrent callers for the same pair all receive the same session.
func (r *Registry) GetOrCreate(from, to netip.AddrPort) (*Session, error) {
	key := EndpointPair{From: from, To: to}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := r.lookup(key)
	hooks := append([]NewSessionHook(nil), r.newHooks...)
	r.mu.Unlock()
	r.flush()
	if ok {
		return s, nil
	}

	s = newSession(key, r.cfg.Sender, r.cfg.Clock)
	for _, h := range hooks {
		if !h(s) {
			r.logger.WithFields(logrus.Fields{
				"function": "GetOrCreate",
				"from":     from.String(),
				"to":       to.String(),
			}).Debug("New session vetoed")
			return nil, ErrVetoed
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if existing, ok := r.lookup(key); ok {
		r.mu.Unlock()
		r.flush()
		return existing, nil
	}
	r.cache.Add(key, s)
	r.mu.Unlock()
	r.flush()

	r.logger.WithFields(logrus.Fields{
		"function": "GetOrCreate",
		"session":  s.ID().String(),
		"from":     from.String(),
		"to":       to.String(),
	}).Debug("Session created")
	return s, nil
}

// GetIfPresent returns the session for the pair without creating one. A hit
// resets the idle clock.
func (r *Registry) GetIfPresent(from, to netip.AddrPort) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.lookup(EndpointPair{From: from, To: to})
	r.mu.Unlock()
	r.flush()
	return s, ok
}

// Discard removes s if it is still the registered session for its key.
func (r *Registry) Discard(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	current, ok := r.cache.Peek(s.key)
	present := ok && current == s && r.cache.Remove(s.key)
	r.mu.Unlock()
	r.flush()
	return present
}

// Sweep removes every idle session and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	n := 0
	for _, key := range r.cache.Keys() {
		if s, ok := r.cache.Peek(key); ok && r.expired(s) {
			r.cache.Remove(key)
			n++
		}
	}
	r.mu.Unlock()
	r.flush()
	return n
}

// Len returns the number of stored sessions, expired ones included until
// the next sweep.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Sessions returns a snapshot of the stored sessions, least recently used
// first.
func (r *Registry) Sessions() []*Session {
	return r.cache.Values()
}

// Start runs the idle sweeper until ctx is done or the registry is closed.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.WithFields(logrus.Fields{
						"function": "Start",
						"expired":  n,
					}).Debug("Swept idle sessions")
				}
			}
		}
	}()
}

// Close removes every session and stops the sweeper. Later calls to
// GetOrCreate fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.cache.Purge()
	r.mu.Unlock()
	r.flush()
	return nil
}

// flush finishes removals queued by the eviction callback.
func (r *Registry) flush() {
	r.mu.Lock()
	removed := r.removed
	r.removed = nil
	hooks := append([]RemovalHook(nil), r.removalHooks...)
	r.mu.Unlock()

	for _, s := range removed {
		s.markRemoved()
		r.logger.WithFields(logrus.Fields{
			"function": "flush",
			"session":  s.ID().String(),
			"from":     s.key.From.String(),
			"to":       s.key.To.String(),
		}).Debug("Session removed")
		for _, h := range hooks {
			h(s)
		}
	}
}
