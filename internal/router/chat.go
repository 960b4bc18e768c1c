package router

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/internal/store"
	"github.com/omochice/framechat/pkg/protocol"
)

const defaultKind = "text"

func (r *Router) handleChat(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
	uid := s.UserID()
	if uid == "" {
		return Result{}, notAuthenticated()
	}
	req, err := payload[protocol.ChatRequest](r, msg)
	if err != nil {
		return Result{}, err
	}
	if (req.RoomID == "") == (req.ReceiverID == "") {
		return Result{}, validationError("Exactly one of roomId and receiverId is required")
	}

	var targets []string
	if req.RoomID != "" {
		targets, err = r.roomAudience(ctx, req.RoomID, uid)
		if err != nil {
			return Result{}, err
		}
	} else {
		// The sender's other sessions see their own private messages.
		targets = []string{req.ReceiverID, uid}
	}

	kind := req.Kind
	if kind == "" {
		kind = defaultKind
	}
	now := r.now()
	rec := store.Record{
		ID:         uuid.NewString(),
		SenderID:   uid,
		ReceiverID: req.ReceiverID,
		RoomID:     req.RoomID,
		Content:    req.Content,
		Kind:       kind,
		CreatedAt:  now,
	}
	delivery := &protocol.ChatDelivery{
		MessageID:  rec.ID,
		SenderID:   uid,
		Sender:     r.profile(ctx, uid, s.Username()),
		Content:    rec.Content,
		Kind:       kind,
		RoomID:     rec.RoomID,
		ReceiverID: rec.ReceiverID,
		Timestamp:  now.UnixMilli(),
	}
	if r.Persister != nil {
		r.Persister.Enqueue(rec)
	}

	return Result{
		Response: msg.Reply(protocol.TypeChatResponse, protocol.StatusOK, &protocol.ChatResponse{
			Success:   true,
			MessageID: rec.ID,
			Timestamp: now.UnixMilli(),
		}),
		Deliveries: []Delivery{{
			Message:        protocol.NewMessage(protocol.TypeNewMessage, delivery),
			UserIDs:        targets,
			ExcludeSession: s.ID(),
		}},
	}, nil
}

// roomAudience checks that uid may post to roomID and returns its members.
func (r *Router) roomAudience(ctx context.Context, roomID, uid string) ([]string, error) {
	members, err := r.Rooms.Members(ctx, roomID)
	if errors.Is(err, room.ErrRoomNotFound) {
		return nil, roomNotFound()
	}
	if err != nil {
		return nil, internalError(err)
	}
	if !contains(members, uid) {
		return nil, &Error{Kind: KindForbidden, Message: "Not a member of this room"}
	}
	return members, nil
}

// profile decorates a delivery with the sender's details. A missing profile
// never fails the delivery.
func (r *Router) profile(ctx context.Context, uid, username string) *protocol.UserProfile {
	p := &protocol.UserProfile{ID: uid, Username: username}
	if r.Users == nil {
		return p
	}
	if u, err := r.Users.LookupUser(ctx, uid); err == nil {
		p.Username = u.Username
		p.Avatar = u.Avatar
	}
	return p
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
