package router

import (
	"context"

	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/store"
	"github.com/omochice/framechat/pkg/protocol"
)

func (r *Router) handleHistory(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
	uid := s.UserID()
	if uid == "" {
		return Result{}, notAuthenticated()
	}
	req, err := payload[protocol.HistoryRequest](r, msg)
	if err != nil {
		return Result{}, err
	}
	if (req.RoomID == "") == (req.PeerID == "") {
		return Result{}, validationError("Exactly one of roomId and peerId is required")
	}
	if req.EndTime > 0 && req.StartTime > req.EndTime {
		return Result{}, validationError("startTime is after endTime")
	}
	if r.History == nil {
		return Result{}, &Error{Kind: KindInternal, Status: protocol.StatusServiceUnavailable, Message: "History is not available"}
	}
	if req.RoomID != "" {
		if _, err := r.roomAudience(ctx, req.RoomID, uid); err != nil {
			return Result{}, err
		}
	}

	records, hasMore, err := r.History.QueryHistory(ctx, store.HistoryQuery{
		RoomID: req.RoomID,
		UserID: uid,
		PeerID: req.PeerID,
		Start:  millis(req.StartTime),
		End:    millis(req.EndTime),
		Limit:  req.Limit,
	})
	if err != nil {
		return Result{}, internalError(err)
	}

	messages := make([]protocol.ChatDelivery, 0, len(records))
	for _, rec := range records {
		messages = append(messages, ChatDelivery(rec))
	}
	return Result{
		Response: msg.Reply(protocol.TypeHistoryResponse, protocol.StatusOK, &protocol.HistoryResponse{
			RoomID:   req.RoomID,
			PeerID:   req.PeerID,
			Messages: messages,
			HasMore:  hasMore,
		}),
	}, nil
}

// ChatDelivery converts a stored record to its wire form.
func ChatDelivery(rec store.Record) protocol.ChatDelivery {
	return protocol.ChatDelivery{
		MessageID:  rec.ID,
		SenderID:   rec.SenderID,
		Content:    rec.Content,
		Kind:       rec.Kind,
		RoomID:     rec.RoomID,
		ReceiverID: rec.ReceiverID,
		Timestamp:  rec.CreatedAt.UnixMilli(),
	}
}
