package cluster

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	in := &Envelope{
		Origin:         "node-a",
		UserIDs:        []string{"u1", "u2"},
		ExcludeSession: "s-1",
		Frame:          []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00},
	}
	out, err := UnmarshalEnvelope(in.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestEnvelope_SkipsUnknownFields(t *testing.T) {
	b := (&Envelope{Origin: "a", Frame: []byte("f")}).Marshal()
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)

	out, err := UnmarshalEnvelope(b)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error = %v", err)
	}
	if out.Origin != "a" || !bytes.Equal(out.Frame, []byte("f")) {
		t.Errorf("UnmarshalEnvelope() = %+v", out)
	}
}

func TestEnvelope_Truncated(t *testing.T) {
	b := (&Envelope{Origin: "node-a", Frame: []byte("frame")}).Marshal()
	if _, err := UnmarshalEnvelope(b[:len(b)-2]); err == nil {
		t.Error("UnmarshalEnvelope() accepted a truncated envelope")
	}
}

func runEmbeddedNATS(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestRelay_DeliversToOtherNodesOnly(t *testing.T) {
	url := runEmbeddedNATS(t)

	a, err := Connect(url, "test.deliveries", "node-a")
	if err != nil {
		t.Fatalf("Connect(a) error = %v", err)
	}
	defer a.Close()
	b, err := Connect(url, "test.deliveries", "node-b")
	if err != nil {
		t.Fatalf("Connect(b) error = %v", err)
	}
	defer b.Close()

	gotA := make(chan Envelope, 1)
	gotB := make(chan Envelope, 1)
	a.Handle(func(e Envelope) { gotA <- e })
	b.Handle(func(e Envelope) { gotB <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Serve(ctx)
	go b.Serve(ctx)

	if err := a.Publish(Envelope{UserIDs: []string{"u1"}, Frame: []byte("hello")}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case e := <-gotB:
		if e.Origin != "node-a" || string(e.Frame) != "hello" || len(e.UserIDs) != 1 {
			t.Errorf("node-b received %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("node-b did not receive the envelope")
	}

	select {
	case e := <-gotA:
		t.Errorf("publisher received its own envelope: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelay_DropsMalformed(t *testing.T) {
	url := runEmbeddedNATS(t)
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	r, err := NewRelay(nc, "test.malformed", "node-a")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	called := make(chan struct{}, 1)
	r.Handle(func(Envelope) { called <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Serve(ctx)

	if err := nc.Publish("test.malformed", []byte{0x0A, 0xFF}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-called:
		t.Error("handler called for a malformed envelope")
	case <-time.After(100 * time.Millisecond):
	}
}
