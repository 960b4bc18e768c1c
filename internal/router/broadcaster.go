package router

import (
	"context"

	"github.com/omochice/framechat/internal/cluster"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/metrics"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/pkg/protocol"
)

// Delivery is a message pushed to every session of some users.
type Delivery struct {
	Message *protocol.Message
	UserIDs []string
	// ExcludeSession is skipped even if it belongs to one of UserIDs.
	ExcludeSession string
}

// SessionSource lists the live sessions of a user.
type SessionSource interface {
	Sessions(userID string) []presence.Session
}

// Publisher forwards deliveries to other nodes.
type Publisher interface {
	Publish(e cluster.Envelope) error
}

// Broadcaster encodes a delivery once and enqueues it on every target
// session. A failed session never affects the others.
type Broadcaster struct {
	codec    *protocol.Codec
	sessions SessionSource
	relay    Publisher
}

// NewBroadcaster creates a Broadcaster. relay may be nil on a single node.
func NewBroadcaster(codec *protocol.Codec, sessions SessionSource, relay Publisher) *Broadcaster {
	return &Broadcaster{codec: codec, sessions: sessions, relay: relay}
}

// Deliver sends d to local sessions and to the relay. It returns the number
// of local sessions the frame was queued on.
func (b *Broadcaster) Deliver(ctx context.Context, d Delivery) int {
	if len(d.UserIDs) == 0 {
		return 0
	}
	frame, err := b.codec.Encode(d.Message)
	if err != nil {
		metrics.Deliveries.WithLabelValues("encode_failed").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("type", d.Message.Type.String()).Msg("encode delivery")
		return 0
	}

	users := dedupe(d.UserIDs)
	n := b.DeliverLocal(ctx, users, d.ExcludeSession, frame)

	if b.relay != nil {
		env := cluster.Envelope{UserIDs: users, ExcludeSession: d.ExcludeSession, Frame: frame}
		if err := b.relay.Publish(env); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("relay publish failed")
		}
	}
	return n
}

// DeliverLocal queues an encoded frame on the sessions this node holds.
func (b *Broadcaster) DeliverLocal(ctx context.Context, userIDs []string, exclude string, frame []byte) int {
	n := 0
	for _, userID := range userIDs {
		for _, s := range b.sessions.Sessions(userID) {
			if s.ID() == exclude {
				continue
			}
			if err := s.Send(frame); err != nil {
				metrics.Deliveries.WithLabelValues("failed").Inc()
				logging.Ctx(ctx).Debug().Err(err).
					Str("target_session", s.ID()).
					Str("user_id", userID).
					Msg("delivery failed")
				continue
			}
			metrics.Deliveries.WithLabelValues("ok").Inc()
			n++
		}
	}
	return n
}

// HandleRelay delivers an envelope received from another node.
func (b *Broadcaster) HandleRelay(e cluster.Envelope) {
	b.DeliverLocal(context.Background(), e.UserIDs, e.ExcludeSession, e.Frame)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
