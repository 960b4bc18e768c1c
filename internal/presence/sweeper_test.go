package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/omochice/framechat/internal/presence"
)

type countingTarget struct {
	calls chan time.Time
}

func (c *countingTarget) Sweep(now time.Time) int {
	select {
	case c.calls <- now:
	default:
	}
	return 0
}

func TestSweeper_EvictsSilentSession(t *testing.T) {
	e := presence.NewEngine(presence.Config{Timeout: 100 * time.Millisecond})
	offline := make(chan presence.Event, 4)
	e.Subscribe(func(ev presence.Event) {
		if !ev.Online {
			offline <- ev
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Notifier().Serve(ctx)
	go presence.NewSweeper(50*time.Millisecond, e).Serve(ctx)

	connected := time.Now()
	s := newFakeSession("silent", connected)
	if err := e.Connect(s, "u1"); err != nil {
		t.Fatal(err)
	}

	// Ticks land at 50ms intervals, so the first sweep past the 100ms
	// timeout runs no later than 200ms after the last heartbeat.
	const bound = 200*time.Millisecond + 30*time.Millisecond
	select {
	case ev := <-offline:
		if ev.UserID != "u1" {
			t.Errorf("offline event for %q", ev.UserID)
		}
		if d := ev.At.Sub(connected); d > bound {
			t.Errorf("evicted %v after the last heartbeat, want within %v", d, bound)
		}
	case <-time.After(time.Second):
		t.Fatal("no offline event after the heartbeat timeout")
	}
	if !s.closed.Load() {
		t.Error("evicted session was not closed")
	}

	time.Sleep(150 * time.Millisecond)
	if n := len(offline); n != 0 {
		t.Errorf("got %d extra offline events", n)
	}
}

func TestSweeper_SweepsEveryTarget(t *testing.T) {
	a := &countingTarget{calls: make(chan time.Time, 1)}
	b := &countingTarget{calls: make(chan time.Time, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- presence.NewSweeper(10*time.Millisecond, a, b).Serve(ctx) }()

	for _, target := range []*countingTarget{a, b} {
		select {
		case <-target.calls:
		case <-time.After(time.Second):
			t.Fatal("target was never swept")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestNotifier_PreservesOrder(t *testing.T) {
	n := presence.NewNotifier()
	var got []string
	n.Subscribe(func(ev presence.Event) { got = append(got, ev.UserID) })
	n.Subscribe(func(presence.Event) { panic("listener bug") })

	for _, id := range []string{"a", "b", "c"} {
		n.Publish(presence.Event{UserID: id})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = n.Serve(ctx)

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("delivered %v, want [a b c]", got)
	}
}
