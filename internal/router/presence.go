package router

import (
	"context"

	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/pkg/protocol"
)

// onPresence tells everyone sharing a room with the user about an
// online/offline transition.
func (r *Router) onPresence(ev presence.Event) {
	ctx := context.Background()

	rooms, err := r.Rooms.RoomsOf(ctx, ev.UserID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", ev.UserID).Msg("presence audience lookup failed")
		return
	}
	var audience []string
	for _, roomID := range rooms {
		members, err := r.Rooms.Members(ctx, roomID)
		if err != nil {
			continue
		}
		for _, m := range members {
			if m != ev.UserID {
				audience = append(audience, m)
			}
		}
	}
	if len(audience) == 0 {
		return
	}

	notice := &protocol.PresenceNotice{
		UserID:    ev.UserID,
		Online:    ev.Online,
		Timestamp: ev.At.UnixMilli(),
	}
	if r.Users != nil {
		if u, err := r.Users.LookupUser(ctx, ev.UserID); err == nil {
			notice.Username = u.Username
		}
	}
	if notice.Username == "" {
		for _, cs := range r.sessionsOf(ev.UserID) {
			if name := cs.Username(); name != "" {
				notice.Username = name
				break
			}
		}
	}

	r.Broadcaster.Deliver(ctx, Delivery{
		Message: protocol.NewMessage(protocol.TypePresence, notice),
		UserIDs: audience,
	})
}
