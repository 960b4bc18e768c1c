package presence

import (
	"context"
	"time"

	"github.com/omochice/framechat/internal/logging"
)

// Sweepable is anything that evicts expired state on demand.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically sweeps its targets. It runs as a supervised service.
type Sweeper struct {
	interval time.Duration
	targets  []Sweepable
	now      func() time.Time
}

// NewSweeper creates a sweeper ticking every interval.
func NewSweeper(interval time.Duration, targets ...Sweepable) *Sweeper {
	return &Sweeper{
		interval: interval,
		targets:  targets,
		now:      time.Now,
	}
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	now := s.now()
	total := 0
	for _, t := range s.targets {
		total += t.Sweep(now)
	}
	if total > 0 {
		logging.Debug().Int("evicted", total).Msg("heartbeat sweep")
	}
}

// String implements fmt.Stringer for the supervisor.
func (s *Sweeper) String() string {
	return "heartbeat-sweeper"
}
