package presence_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/framechat/internal/presence"
)

type fakeSession struct {
	id     string
	beat   atomic.Int64
	closed atomic.Bool
}

func newFakeSession(id string, at time.Time) *fakeSession {
	s := &fakeSession{id: id}
	s.beat.Store(at.UnixNano())
	return s
}

func (s *fakeSession) ID() string               { return s.id }
func (s *fakeSession) LastHeartbeat() time.Time { return time.Unix(0, s.beat.Load()) }
func (s *fakeSession) Send([]byte) error        { return nil }
func (s *fakeSession) Close() error             { s.closed.Store(true); return nil }

func (s *fakeSession) Touch(t time.Time) {
	if t.UnixNano() > s.beat.Load() {
		s.beat.Store(t.UnixNano())
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []presence.Event
}

func (l *eventLog) record(ev presence.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []presence.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]presence.Event(nil), l.events...)
}

// drain runs the notifier until its queue is empty.
func drain(t *testing.T, e *presence.Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = e.Notifier().Serve(ctx)
	if n := e.Notifier().Pending(); n != 0 {
		t.Fatalf("Pending() = %d after drain", n)
	}
}

func newEngine(policy presence.Policy, c *clock) (*presence.Engine, *eventLog) {
	e := presence.NewEngine(presence.Config{
		Policy:  policy,
		Timeout: 90 * time.Second,
		Stripes: 4,
		Now:     c.Now,
	})
	log := &eventLog{}
	e.Subscribe(log.record)
	return e, log
}

func TestEngine_EdgeTriggeredAcrossSessions(t *testing.T) {
	c := &clock{now: time.Unix(10_000, 0)}
	e, log := newEngine(presence.PolicyMulti, c)

	a := newFakeSession("a", c.Now())
	b := newFakeSession("b", c.Now())

	if err := e.Connect(a, "u1"); err != nil {
		t.Fatalf("Connect(a) error = %v", err)
	}
	if err := e.Connect(b, "u1"); err != nil {
		t.Fatalf("Connect(b) error = %v", err)
	}
	e.Disconnect(a, "u1")
	e.Disconnect(b, "u1")
	drain(t, e)

	events := log.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if !events[0].Online || events[1].Online {
		t.Errorf("events = %+v, want online then offline", events)
	}
	if e.IsOnline("u1") {
		t.Error("IsOnline() = true after all sessions left")
	}
}

func TestEngine_HeartbeatWithoutTransition(t *testing.T) {
	c := &clock{now: time.Unix(10_000, 0)}
	e, log := newEngine(presence.PolicyMulti, c)
	s := newFakeSession("s", c.Now())

	if err := e.Connect(s, "u1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		c.Advance(10 * time.Second)
		if !e.Heartbeat(s, "u1") {
			t.Fatal("Heartbeat() = false for connected session")
		}
	}
	drain(t, e)

	if got := len(log.snapshot()); got != 1 {
		t.Errorf("got %d events, want 1", got)
	}
	if !s.LastHeartbeat().Equal(c.Now()) {
		t.Errorf("LastHeartbeat() = %v, want %v", s.LastHeartbeat(), c.Now())
	}
}

func TestEngine_HeartbeatUnknownSession(t *testing.T) {
	c := &clock{now: time.Unix(10_000, 0)}
	e, _ := newEngine(presence.PolicyMulti, c)

	if e.Heartbeat(newFakeSession("x", c.Now()), "nobody") {
		t.Error("Heartbeat() = true for an unknown session")
	}
	e.Disconnect(newFakeSession("x", c.Now()), "nobody")
	if e.OnlineUsers() != 0 {
		t.Errorf("OnlineUsers() = %d", e.OnlineUsers())
	}
}

func TestEngine_SinglePolicyRejectsSecondSession(t *testing.T) {
	c := &clock{now: time.Unix(10_000, 0)}
	e, _ := newEngine(presence.PolicySingle, c)

	first := newFakeSession("first", c.Now())
	if err := e.Connect(first, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect(newFakeSession("second", c.Now()), "u1"); !errors.Is(err, presence.ErrAlreadyOnline) {
		t.Errorf("Connect(second) error = %v, want ErrAlreadyOnline", err)
	}
	if err := e.Connect(first, "u1"); err != nil {
		t.Errorf("reconnecting the same session error = %v", err)
	}

	c.Advance(2 * time.Minute)
	if err := e.Connect(newFakeSession("third", c.Now()), "u1"); err != nil {
		t.Errorf("Connect() after the first session went stale error = %v", err)
	}
}

func TestEngine_SweepEvictsStaleSessions(t *testing.T) {
	c := &clock{now: time.Unix(10_000, 0)}
	e, log := newEngine(presence.PolicyMulti, c)

	stale := newFakeSession("stale", c.Now())
	if err := e.Connect(stale, "u1"); err != nil {
		t.Fatal(err)
	}
	c.Advance(60 * time.Second)
	live := newFakeSession("live", c.Now())
	if err := e.Connect(live, "u2"); err != nil {
		t.Fatal(err)
	}

	c.Advance(40 * time.Second)
	if n := e.Sweep(c.Now()); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if !stale.closed.Load() {
		t.Error("stale session was not closed")
	}
	if live.closed.Load() {
		t.Error("live session was closed")
	}
	if n := e.Sweep(c.Now()); n != 0 {
		t.Errorf("second Sweep() = %d, want 0", n)
	}
	drain(t, e)

	var offline int
	for _, ev := range log.snapshot() {
		if !ev.Online {
			offline++
			if ev.UserID != "u1" {
				t.Errorf("offline event for %q", ev.UserID)
			}
		}
	}
	if offline != 1 {
		t.Errorf("got %d offline events, want 1", offline)
	}
}

func TestEngine_ConcurrentConnectDisconnect(t *testing.T) {
	e := presence.NewEngine(presence.Config{Timeout: time.Minute})
	log := &eventLog{}
	e.Subscribe(log.record)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := newFakeSession(fmt.Sprintf("s-%d", i), time.Now())
			if err := e.Connect(s, "shared"); err != nil {
				t.Error(err)
				return
			}
			e.Disconnect(s, "shared")
		}(i)
	}
	wg.Wait()
	drain(t, e)

	events := log.snapshot()
	if len(events)%2 != 0 {
		t.Fatalf("got %d events, want an even count", len(events))
	}
	for i, ev := range events {
		if ev.Online != (i%2 == 0) {
			t.Fatalf("event %d Online = %v, events must alternate", i, ev.Online)
		}
	}
	if e.IsOnline("shared") {
		t.Error("IsOnline() = true after every session left")
	}
}
