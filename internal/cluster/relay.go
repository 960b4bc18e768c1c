package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/metrics"
)

// Handler delivers an envelope received from another node.
type Handler func(Envelope)

// Relay publishes envelopes to and receives them from the other nodes.
type Relay struct {
	nc      *nats.Conn
	owned   bool
	subject string
	nodeID  string

	sub *nats.Subscription
	in  chan *nats.Msg

	mu      sync.RWMutex
	handler Handler
}

// Connect dials url and returns a relay that owns the connection.
func Connect(url, subject, nodeID string) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.Name("framechat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	r, err := NewRelay(nc, subject, nodeID)
	if err != nil {
		nc.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// NewRelay subscribes to subject on nc. An empty nodeID gets a random one.
func NewRelay(nc *nats.Conn, subject, nodeID string) (*Relay, error) {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	r := &Relay{
		nc:      nc,
		subject: subject,
		nodeID:  nodeID,
		in:      make(chan *nats.Msg, 1024),
	}
	sub, err := nc.ChanSubscribe(subject, r.in)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	r.sub = sub
	return r, nil
}

// NodeID returns the id stamped on published envelopes.
func (r *Relay) NodeID() string {
	return r.nodeID
}

// Handle sets the function receiving envelopes from other nodes.
func (r *Relay) Handle(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Publish sends e to the other nodes.
func (r *Relay) Publish(e Envelope) error {
	e.Origin = r.nodeID
	if err := r.nc.Publish(r.subject, e.Marshal()); err != nil {
		metrics.RelayMessages.WithLabelValues("publish_failed").Inc()
		return fmt.Errorf("publish envelope: %w", err)
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
	return nil
}

// Serve hands envelopes from other nodes to the handler until ctx is
// canceled. It implements suture.Service.
func (r *Relay) Serve(ctx context.Context) error {
	for {
		select {
		case msg := <-r.in:
			r.dispatch(msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) dispatch(msg *nats.Msg) {
	env, err := UnmarshalEnvelope(msg.Data)
	if err != nil {
		metrics.RelayMessages.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Msg("dropping malformed relay envelope")
		return
	}
	if env.Origin == r.nodeID {
		return
	}
	metrics.RelayMessages.WithLabelValues("in").Inc()

	r.mu.RLock()
	h := r.handler
	r.mu.RUnlock()
	if h != nil {
		h(*env)
	}
}

// Close unsubscribes and, if the relay dialed the connection, closes it.
func (r *Relay) Close() error {
	err := r.sub.Unsubscribe()
	if r.owned {
		r.nc.Close()
	}
	return err
}

// String implements fmt.Stringer for the supervisor.
func (r *Relay) String() string {
	return "cluster-relay"
}
