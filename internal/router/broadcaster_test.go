package router_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omochice/framechat/internal/cluster"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/internal/router"
	"github.com/omochice/framechat/pkg/protocol"
)

type stubSession struct {
	id   string
	fail bool

	mu     sync.Mutex
	frames [][]byte
}

func (s *stubSession) ID() string               { return s.id }
func (s *stubSession) LastHeartbeat() time.Time { return time.Now() }
func (s *stubSession) Touch(time.Time)          {}
func (s *stubSession) Close() error             { return nil }

func (s *stubSession) Send(frame []byte) error {
	if s.fail {
		return errors.New("buffer full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *stubSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type stubSource map[string][]presence.Session

func (m stubSource) Sessions(userID string) []presence.Session { return m[userID] }

type recordingRelay struct {
	envelopes []cluster.Envelope
	err       error
}

func (r *recordingRelay) Publish(e cluster.Envelope) error {
	r.envelopes = append(r.envelopes, e)
	return r.err
}

func TestBroadcaster_IsolatesFailingSession(t *testing.T) {
	good1 := &stubSession{id: "g1"}
	bad := &stubSession{id: "bad", fail: true}
	good2 := &stubSession{id: "g2"}
	src := stubSource{
		"A": {good1, bad},
		"B": {good2},
	}
	b := router.NewBroadcaster(protocol.NewCodec(nil), src, nil)

	n := b.Deliver(context.Background(), router.Delivery{
		Message: protocol.NewMessage(protocol.TypeSystem, &protocol.SystemMessage{Message: "hi"}),
		UserIDs: []string{"A", "B"},
	})
	if n != 2 {
		t.Errorf("Deliver() = %d, want 2", n)
	}
	if good1.count() != 1 || good2.count() != 1 {
		t.Errorf("frames = %d, %d; want 1, 1", good1.count(), good2.count())
	}
}

func TestBroadcaster_DedupesAndExcludes(t *testing.T) {
	origin := &stubSession{id: "origin"}
	other := &stubSession{id: "other"}
	peer := &stubSession{id: "peer"}
	src := stubSource{
		"A": {origin, other},
		"B": {peer},
	}
	relay := &recordingRelay{}
	b := router.NewBroadcaster(protocol.NewCodec(nil), src, relay)

	n := b.Deliver(context.Background(), router.Delivery{
		Message:        protocol.NewMessage(protocol.TypeSystem, &protocol.SystemMessage{Message: "hi"}),
		UserIDs:        []string{"B", "A", "B", ""},
		ExcludeSession: "origin",
	})
	if n != 2 {
		t.Errorf("Deliver() = %d, want 2", n)
	}
	if origin.count() != 0 || other.count() != 1 || peer.count() != 1 {
		t.Errorf("frames = %d/%d/%d; want 0/1/1", origin.count(), other.count(), peer.count())
	}

	if len(relay.envelopes) != 1 {
		t.Fatalf("relay got %d envelopes, want 1", len(relay.envelopes))
	}
	env := relay.envelopes[0]
	if len(env.UserIDs) != 2 || env.UserIDs[0] != "B" || env.UserIDs[1] != "A" {
		t.Errorf("envelope users = %v", env.UserIDs)
	}
	if env.ExcludeSession != "origin" || len(env.Frame) == 0 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestBroadcaster_RelayFailureKeepsLocalDelivery(t *testing.T) {
	s := &stubSession{id: "s"}
	relay := &recordingRelay{err: errors.New("nats down")}
	b := router.NewBroadcaster(protocol.NewCodec(nil), stubSource{"A": {s}}, relay)

	n := b.Deliver(context.Background(), router.Delivery{
		Message: protocol.NewMessage(protocol.TypeSystem, &protocol.SystemMessage{Message: "hi"}),
		UserIDs: []string{"A"},
	})
	if n != 1 || s.count() != 1 {
		t.Errorf("Deliver() = %d, frames = %d", n, s.count())
	}
}

func TestBroadcaster_HandleRelay(t *testing.T) {
	codec := protocol.NewCodec(nil)
	frame, err := codec.Encode(protocol.NewMessage(protocol.TypeSystem, &protocol.SystemMessage{Message: "remote"}))
	if err != nil {
		t.Fatal(err)
	}
	kept := &stubSession{id: "kept"}
	skipped := &stubSession{id: "skipped"}
	relay := &recordingRelay{}
	b := router.NewBroadcaster(codec, stubSource{"A": {kept, skipped}}, relay)

	b.HandleRelay(cluster.Envelope{Origin: "node-2", UserIDs: []string{"A"}, ExcludeSession: "skipped", Frame: frame})

	if kept.count() != 1 || skipped.count() != 0 {
		t.Errorf("frames = %d/%d, want 1/0", kept.count(), skipped.count())
	}
	if len(relay.envelopes) != 0 {
		t.Error("relayed frame was published again")
	}
}
