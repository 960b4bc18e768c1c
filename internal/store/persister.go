package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/metrics"
)

// Writer stores a single record.
type Writer interface {
	Persist(ctx context.Context, r Record) error
}

// PersisterConfig configures a Persister.
type PersisterConfig struct {
	QueueSize int
	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Persister writes records in the background so that delivery never waits
// on the database. While the breaker is open records are dropped instead of
// piling up behind a failing database.
type Persister struct {
	writer  Writer
	queue   chan Record
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[struct{}]
}

// NewPersister creates a Persister in front of w.
func NewPersister(w Writer, cfg PersisterConfig) *Persister {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &Persister{
		writer:  w,
		queue:   make(chan Record, cfg.QueueSize),
		timeout: cfg.WriteTimeout,
		cb:      gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Enqueue hands r to the background writer. It returns false when the queue
// is full and r was dropped.
func (p *Persister) Enqueue(r Record) bool {
	select {
	case p.queue <- r:
		return true
	default:
		metrics.Persisted.WithLabelValues("dropped").Inc()
		logging.Warn().Str("message_id", r.ID).Msg("persist queue full, dropping message")
		return false
	}
}

// State returns the breaker state.
func (p *Persister) State() gobreaker.State {
	return p.cb.State()
}

// Serve writes queued records until ctx is canceled, then writes whatever
// is still queued. It implements suture.Service.
func (p *Persister) Serve(ctx context.Context) error {
	for {
		select {
		case r := <-p.queue:
			p.write(r)
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		}
	}
}

func (p *Persister) drain() {
	for {
		select {
		case r := <-p.queue:
			p.write(r)
		default:
			return
		}
	}
}

func (p *Persister) write(r Record) {
	_, err := p.cb.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		return struct{}{}, p.writer.Persist(ctx, r)
	})
	switch {
	case err == nil:
		metrics.Persisted.WithLabelValues("ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.Persisted.WithLabelValues("rejected").Inc()
	default:
		metrics.Persisted.WithLabelValues("failed").Inc()
		logging.Error().Err(err).Str("message_id", r.ID).Msg("persist message failed")
	}
}

// String implements fmt.Stringer for the supervisor.
func (p *Persister) String() string {
	return "message-persister"
}
