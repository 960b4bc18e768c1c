package presence

import (
	"context"
	"sync"
	"time"

	"github.com/omochice/framechat/internal/logging"
)

// Event is an online/offline transition of one user.
type Event struct {
	UserID string
	Online bool
	At     time.Time
}

// Listener receives events in publish order. Listeners run on the notifier
// goroutine and must not block for long.
type Listener func(Event)

// Notifier is an unbounded FIFO between the engine, which publishes while
// holding user locks, and listeners, which run without any engine lock.
type Notifier struct {
	mu     sync.Mutex
	queue  []Event
	signal chan struct{}

	lmu       sync.RWMutex
	listeners []Listener
}

// NewNotifier creates an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{signal: make(chan struct{}, 1)}
}

// Subscribe adds a listener.
func (n *Notifier) Subscribe(fn Listener) {
	n.lmu.Lock()
	defer n.lmu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// Publish enqueues ev. It never blocks.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()

	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of undelivered events.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Serve dispatches events until ctx is canceled, then delivers whatever is
// still queued and returns.
func (n *Notifier) Serve(ctx context.Context) error {
	for {
		select {
		case <-n.signal:
			n.dispatch()
		case <-ctx.Done():
			n.dispatch()
			return ctx.Err()
		}
	}
}

func (n *Notifier) dispatch() {
	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		n.mu.Unlock()
		if len(batch) == 0 {
			return
		}

		n.lmu.RLock()
		listeners := n.listeners
		n.lmu.RUnlock()

		for _, ev := range batch {
			for _, fn := range listeners {
				n.call(fn, ev)
			}
		}
	}
}

func (n *Notifier) call(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("user_id", ev.UserID).
				Msg("presence listener panicked")
		}
	}()
	fn(ev)
}

// String implements fmt.Stringer for the supervisor.
func (n *Notifier) String() string {
	return "presence-notifier"
}
