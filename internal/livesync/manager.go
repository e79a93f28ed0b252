// Package livesync keeps the latest state of every live match and fans out
// versioned updates to its subscribers.
package livesync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStaleUpdate is returned by Publish for a version at or below the
	// one already held. It is an expected race, callers usually ignore it.
	ErrStaleUpdate = errors.New("stale update")
	ErrClosed      = errors.New("live sync manager is closed")
)

const (
	UpdateSnapshot = "snapshot"
	UpdateDelta    = "delta"

	DefaultBuffer = 64
	DefaultGrace  = 30 * time.Minute
)

// Update is the payload delivered to subscribers and written to the wire.
type Update struct {
	MatchID  uuid.UUID `json:"matchId"`
	Version  int64     `json:"version"`
	Type     string    `json:"type"`
	Data     *Delta    `json:"data,omitempty"`
	Snapshot *State    `json:"snapshot,omitempty"`
	Source   string    `json:"source,omitempty"`
}

// Callback receives updates for one subscription, one at a time and in
// version order. Updates are shared between subscribers and must not be
// modified.
type Callback func(Update)

type Stats struct {
	Topics      int `json:"topics"`
	Subscribers int `json:"subscribers"`
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithBuffer sets how many updates may queue per subscriber before updates
// are dropped for it.
func WithBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.buffer = n
		}
	}
}

// WithGrace sets how long a finished match's snapshot outlives its last subscriber.
func WithGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type SubscribeOption func(*subscriber)

// WithKind limits a subscription to deltas of one kind. Snapshots are always delivered.
func WithKind(k Kind) SubscribeOption {
	return func(s *subscriber) { s.kind = k }
}

// WithQueueSize overrides the manager's buffer for one subscription.
func WithQueueSize(n int) SubscribeOption {
	return func(s *subscriber) {
		if n > 0 {
			s.size = n
		}
	}
}

// Manager owns one topic per match. Each topic has its own lock so a burst
// of updates on one match never holds up another.
type Manager struct {
	mu     sync.RWMutex
	topics map[uuid.UUID]*topic
	closed bool

	nextID atomic.Uint64
	buffer int
	grace  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		topics: make(map[uuid.UUID]*topic),
		buffer: DefaultBuffer,
		grace:  DefaultGrace,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type topic struct {
	mu        sync.Mutex
	matchID   uuid.UUID
	state     State
	hasState  bool
	subs      map[uint64]*subscriber
	expiresAt time.Time
	// dead is set once the topic left the manager; holders must look it up again.
	dead bool
}

type subscriber struct {
	id    uint64
	kind  Kind
	size  int
	queue chan Update
	// behind is signalled when an update was dropped for this subscriber.
	behind chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	topic  *topic
	// resync is guarded by topic.mu.
	resync bool
}

func (s *subscriber) halt() {
	s.once.Do(func() { close(s.stop) })
}

func (s *subscriber) run(cb Callback) {
	defer close(s.done)
	var last int64
	seen := false
	deliver := func(u Update) {
		if seen && u.Version <= last {
			return
		}
		seen, last = true, u.Version
		cb(u)
	}
	for {
		select {
		case <-s.stop:
			return
		case u := <-s.queue:
			deliver(u)
		case <-s.behind:
			if u, ok := s.catchUp(); ok {
				deliver(u)
			}
		}
	}
}

// catchUp returns the topic's snapshot if an update was dropped since the
// last resync.
func (s *subscriber) catchUp() (Update, bool) {
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	if !s.resync || !t.hasState {
		return Update{}, false
	}
	s.resync = false
	return snapshotUpdate(t.state), true
}

// Handle identifies one subscription.
type Handle struct {
	matchID uuid.UUID
	sub     *subscriber
	m       *Manager
	once    sync.Once
}

func (h *Handle) MatchID() uuid.UUID { return h.matchID }

// Done is closed once the subscription stopped delivering.
func (h *Handle) Done() <-chan struct{} { return h.sub.done }

func (h *Handle) Close() { h.m.Unsubscribe(h) }

func (m *Manager) lookup(matchID uuid.UUID, create bool) (*topic, error) {
	m.mu.RLock()
	closed, t := m.closed, m.topics[matchID]
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if t != nil || !create {
		return t, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if t = m.topics[matchID]; t == nil {
		t = &topic{matchID: matchID, subs: make(map[uint64]*subscriber)}
		m.topics[matchID] = t
	}
	return t, nil
}

// withTopic runs fn with the match's topic locked, retrying when the topic
// was swept between lookup and lock.
func (m *Manager) withTopic(matchID uuid.UUID, fn func(t *topic) error) error {
	for {
		t, err := m.lookup(matchID, true)
		if err != nil {
			return err
		}
		t.mu.Lock()
		if t.dead {
			t.mu.Unlock()
			continue
		}
		err = fn(t)
		t.mu.Unlock()
		return err
	}
}

// Subscribe registers cb for matchID. If a snapshot is known it is delivered
// first; after that only strictly newer versions reach cb.
func (m *Manager) Subscribe(matchID uuid.UUID, cb Callback, opts ...SubscribeOption) (*Handle, error) {
	sub := &subscriber{
		id:   m.nextID.Add(1),
		kind:   KindAll,
		size:   m.buffer,
		behind: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sub)
	}
	sub.queue = make(chan Update, sub.size)

	err := m.withTopic(matchID, func(t *topic) error {
		if t.hasState {
			sub.queue <- snapshotUpdate(t.state)
		}
		sub.topic = t
		t.subs[sub.id] = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	go sub.run(cb)
	m.logger.Debug("live subscriber joined", "match_id", matchID, "subscriber", sub.id, "kind", sub.kind)
	return &Handle{matchID: matchID, sub: sub, m: m}, nil
}

// Unsubscribe releases the subscription and its queued updates. It does not
// wait for a running callback; use Handle.Done for that.
func (m *Manager) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		m.mu.Lock()
		if t := m.topics[h.matchID]; t != nil {
			t.mu.Lock()
			delete(t.subs, h.sub.id)
			if len(t.subs) == 0 && !t.hasState {
				t.dead = true
				delete(m.topics, h.matchID)
			}
			t.mu.Unlock()
		}
		m.mu.Unlock()
		h.sub.halt()
		m.logger.Debug("live subscriber left", "match_id", h.matchID, "subscriber", h.sub.id)
	})
}

// Publish merges delta into the match's snapshot at version and fans it out.
// A version at or below the snapshot's is rejected with ErrStaleUpdate and
// nothing is delivered. Publish never waits on a subscriber.
func (m *Manager) Publish(matchID uuid.UUID, delta Delta, version int64, source string) error {
	return m.withTopic(matchID, func(t *topic) error {
		if t.hasState && version <= t.state.Version {
			m.logger.Debug("stale live update ignored",
				"match_id", matchID, "version", version, "known", t.state.Version, "source", source)
			return ErrStaleUpdate
		}
		if t.hasState && t.state.Source != "" && source != "" && source != t.state.Source {
			m.logger.Warn("concurrent writers on match",
				"match_id", matchID, "previous", t.state.Source, "source", source, "version", version)
		}

		if !t.hasState {
			t.state = State{MatchID: matchID}
			t.hasState = true
		}
		t.state.Apply(delta)
		t.state.Version = version
		t.state.Source = source
		t.state.UpdatedAt = m.now()
		t.touch(m.now(), m.grace)

		d := delta
		m.broadcast(t, Update{MatchID: matchID, Version: version, Type: UpdateDelta, Data: &d, Source: source}, &d)
		return nil
	})
}

// Prime installs a snapshot rebuilt from storage. It only replaces a strictly
// older snapshot and reports whether it did; subscribers receive the new
// snapshot in full.
func (m *Manager) Prime(s State) (bool, error) {
	replaced := false
	err := m.withTopic(s.MatchID, func(t *topic) error {
		if t.hasState && s.Version <= t.state.Version {
			return nil
		}
		t.state = s.Clone()
		if t.state.UpdatedAt.IsZero() {
			t.state.UpdatedAt = m.now()
		}
		t.hasState = true
		t.touch(m.now(), m.grace)
		m.broadcast(t, snapshotUpdate(t.state), nil)
		replaced = true
		return nil
	})
	return replaced, err
}

// GetSnapshot returns a copy of the last known state of the match.
func (m *Manager) GetSnapshot(matchID uuid.UUID) (State, bool) {
	t, err := m.lookup(matchID, false)
	if err != nil || t == nil {
		return State{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasState || t.dead {
		return State{}, false
	}
	return t.state.Clone(), true
}

// touch starts the grace period once the match is over.
func (t *topic) touch(now time.Time, grace time.Duration) {
	if t.state.Status.Terminal() {
		if t.expiresAt.IsZero() {
			t.expiresAt = now.Add(grace)
		}
		return
	}
	t.expiresAt = time.Time{}
}

// broadcast enqueues u for every subscriber of t. t.mu must be held, which
// keeps all subscribers of a match on the same version order. A subscriber
// with a full queue loses the update and is brought up to date with a
// snapshot, either by its own goroutine or by the next broadcast.
func (m *Manager) broadcast(t *topic, u Update, delta *Delta) {
	for _, s := range t.subs {
		out := u
		switch {
		case s.resync:
			out = snapshotUpdate(t.state)
		case delta != nil && !delta.Touches(s.kind):
			continue
		}
		select {
		case s.queue <- out:
			s.resync = false
		default:
			s.resync = true
			select {
			case s.behind <- struct{}{}:
			default:
			}
			m.logger.Warn("live subscriber is behind, dropping update",
				"match_id", t.matchID, "subscriber", s.id, "version", u.Version)
		}
	}
}

func snapshotUpdate(s State) Update {
	snap := s.Clone()
	return Update{MatchID: s.MatchID, Version: s.Version, Type: UpdateSnapshot, Snapshot: &snap, Source: s.Source}
}

// Sweep drops topics nobody listens to whose match finished longer than the
// grace period ago, or that never held a snapshot. It returns how many went.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, t := range m.topics {
		t.mu.Lock()
		expired := !t.expiresAt.IsZero() && now.After(t.expiresAt)
		if len(t.subs) == 0 && (!t.hasState || expired) {
			t.dead = true
			delete(m.topics, id)
			removed++
		}
		t.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("live sync sweeper stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 {
				m.logger.Debug("swept finished matches", "count", n)
			}
		}
	}
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Topics: len(m.topics)}
	for _, t := range m.topics {
		t.mu.Lock()
		st.Subscribers += len(t.subs)
		t.mu.Unlock()
	}
	return st
}

// Close stops every subscription. Later calls to Subscribe and Publish fail with ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, t := range m.topics {
		t.mu.Lock()
		for _, s := range t.subs {
			s.halt()
		}
		t.subs = map[uint64]*subscriber{}
		t.dead = true
		t.mu.Unlock()
		delete(m.topics, id)
	}
}
