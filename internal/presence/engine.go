// Package presence tracks which users are online across all of their
// connections.
//
// A user is online while at least one of their sessions has sent a
// heartbeat within the timeout. Every mutation for one user runs under that
// user's stripe lock, so online/offline events are emitted exactly once per
// transition and in the order the transitions happened.
package presence

import (
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omochice/framechat/internal/metrics"
)

// ErrAlreadyOnline is returned by Connect under PolicySingle when the user
// already has a live session.
var ErrAlreadyOnline = errors.New("presence: user already online")

// Policy decides how concurrent sessions of one user are treated.
type Policy string

const (
	// PolicyMulti accepts any number of sessions per user.
	PolicyMulti Policy = "multi"
	// PolicySingle rejects a login while another fresh session exists.
	PolicySingle Policy = "single"
)

// Session is the view of a connection the engine needs.
type Session interface {
	ID() string
	LastHeartbeat() time.Time
	Touch(t time.Time)
	Send(frame []byte) error
	Close() error
}

// Config configures an Engine.
type Config struct {
	Policy  Policy
	Timeout time.Duration
	// Stripes is the number of user lock stripes. Defaults to 64.
	Stripes int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type record struct {
	sessions map[string]Session
	online   bool
}

// Engine is the presence state machine.
type Engine struct {
	policy  Policy
	timeout time.Duration
	now     func() time.Time
	stripes []sync.Mutex

	// mu guards the records map itself; record contents are guarded by the
	// owning user's stripe.
	mu      sync.RWMutex
	records map[string]*record

	notifier *Notifier
}

// NewEngine creates an Engine publishing transitions to a new Notifier.
func NewEngine(cfg Config) *Engine {
	if cfg.Policy == "" {
		cfg.Policy = PolicyMulti
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Stripes <= 0 {
		cfg.Stripes = 64
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		policy:   cfg.Policy,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		stripes:  make([]sync.Mutex, cfg.Stripes),
		records:  make(map[string]*record),
		notifier: NewNotifier(),
	}
}

// Notifier returns the queue transitions are published to.
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// Subscribe registers fn for every transition.
func (e *Engine) Subscribe(fn Listener) {
	e.notifier.Subscribe(fn)
}

// Timeout returns the heartbeat timeout.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

func (e *Engine) lock(userID string) func() {
	m := &e.stripes[xxhash.Sum64String(userID)%uint64(len(e.stripes))]
	m.Lock()
	return m.Unlock
}

func (e *Engine) get(userID string) *record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records[userID]
}

func (e *Engine) put(userID string, rec *record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[userID] = rec
	metrics.OnlineUsers.Set(float64(len(e.records)))
}

func (e *Engine) remove(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.records, userID)
	metrics.OnlineUsers.Set(float64(len(e.records)))
}

func (e *Engine) fresh(s Session, now time.Time) bool {
	return now.Sub(s.LastHeartbeat()) < e.timeout
}

// Connect adds an authenticated session to the user's set. Connecting
// counts as a heartbeat.
func (e *Engine) Connect(s Session, userID string) error {
	unlock := e.lock(userID)
	defer unlock()

	now := e.now()
	rec := e.get(userID)
	if rec != nil && e.policy == PolicySingle {
		for id, other := range rec.sessions {
			if id != s.ID() && e.fresh(other, now) {
				return ErrAlreadyOnline
			}
		}
	}
	if rec == nil {
		rec = &record{sessions: make(map[string]Session)}
		e.put(userID, rec)
	}

	s.Touch(now)
	rec.sessions[s.ID()] = s
	e.reconcile(userID, rec, now)
	return nil
}

// Heartbeat refreshes s. It returns false if s is not connected for userID.
func (e *Engine) Heartbeat(s Session, userID string) bool {
	unlock := e.lock(userID)
	defer unlock()

	rec := e.get(userID)
	if rec == nil {
		return false
	}
	if _, ok := rec.sessions[s.ID()]; !ok {
		return false
	}
	now := e.now()
	s.Touch(now)
	e.reconcile(userID, rec, now)
	return true
}

// Disconnect removes s from the user's set. Unknown sessions are ignored.
func (e *Engine) Disconnect(s Session, userID string) {
	unlock := e.lock(userID)
	defer unlock()

	rec := e.get(userID)
	if rec == nil {
		return
	}
	if _, ok := rec.sessions[s.ID()]; !ok {
		return
	}
	delete(rec.sessions, s.ID())
	e.settle(userID, rec, e.now())
}

// Sweep evicts sessions whose last heartbeat is older than the timeout,
// closes their transports and returns how many were evicted.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.RLock()
	users := make([]string, 0, len(e.records))
	for u := range e.records {
		users = append(users, u)
	}
	e.mu.RUnlock()

	var evicted []Session
	for _, userID := range users {
		evicted = append(evicted, e.sweepUser(userID, now)...)
	}
	for _, s := range evicted {
		s.Close()
	}
	if n := len(evicted); n > 0 {
		metrics.SweeperEvictions.Add(float64(n))
	}
	return len(evicted)
}

func (e *Engine) sweepUser(userID string, now time.Time) []Session {
	unlock := e.lock(userID)
	defer unlock()

	rec := e.get(userID)
	if rec == nil {
		return nil
	}
	var stale []Session
	for id, s := range rec.sessions {
		if now.Sub(s.LastHeartbeat()) > e.timeout {
			stale = append(stale, s)
			delete(rec.sessions, id)
		}
	}
	e.settle(userID, rec, now)
	return stale
}

// settle drops an emptied record or reconciles the online flag.
// Caller holds the user's stripe.
func (e *Engine) settle(userID string, rec *record, now time.Time) {
	if len(rec.sessions) > 0 {
		e.reconcile(userID, rec, now)
		return
	}
	e.remove(userID)
	if rec.online {
		rec.online = false
		e.emit(userID, false, now)
	}
}

// reconcile compares the stored flag with the derived one and emits on
// change. Caller holds the user's stripe.
func (e *Engine) reconcile(userID string, rec *record, now time.Time) {
	online := false
	for _, s := range rec.sessions {
		if e.fresh(s, now) {
			online = true
			break
		}
	}
	if online == rec.online {
		return
	}
	rec.online = online
	e.emit(userID, online, now)
}

func (e *Engine) emit(userID string, online bool, at time.Time) {
	state := "offline"
	if online {
		state = "online"
	}
	metrics.PresenceTransitions.WithLabelValues(state).Inc()
	e.notifier.Publish(Event{UserID: userID, Online: online, At: at})
}

// Sessions returns the user's connected sessions.
func (e *Engine) Sessions(userID string) []Session {
	unlock := e.lock(userID)
	defer unlock()

	rec := e.get(userID)
	if rec == nil {
		return nil
	}
	out := make([]Session, 0, len(rec.sessions))
	for _, s := range rec.sessions {
		out = append(out, s)
	}
	return out
}

// IsOnline reports the last emitted state of the user.
func (e *Engine) IsOnline(userID string) bool {
	unlock := e.lock(userID)
	defer unlock()

	rec := e.get(userID)
	return rec != nil && rec.online
}

// OnlineUsers returns the number of users with at least one session.
func (e *Engine) OnlineUsers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.records)
}
