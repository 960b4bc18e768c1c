package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/pkg/protocol"
)

// roomAction returns the handler for a fixed action, or for the action
// named in the payload when action is empty.
func (r *Router) roomAction(action string) handlerFunc {
	return func(ctx context.Context, s *chat.Session, msg *protocol.Message) (Result, error) {
		uid := s.UserID()
		if uid == "" {
			return Result{}, notAuthenticated()
		}
		req, err := payload[protocol.RoomRequest](r, msg)
		if err != nil {
			return Result{}, err
		}
		act := action
		if act == "" {
			act = req.Action
		}

		var res Result
		switch act {
		case protocol.RoomActionCreate:
			res, err = r.createRoom(ctx, s, req)
		case protocol.RoomActionJoin:
			res, err = r.joinRoom(ctx, s, req)
		case protocol.RoomActionLeave:
			res, err = r.leaveRoom(ctx, s, req)
		case protocol.RoomActionList:
			res, err = r.listRooms(ctx, s)
		case protocol.RoomActionMembers:
			res, err = r.roomMembers(ctx, s, req)
		case protocol.RoomActionDelete:
			res, err = r.deleteRoom(ctx, s, req)
		default:
			return Result{}, validationError("Unknown room action")
		}
		if err != nil {
			return Result{}, err
		}
		resp := res.Response.Payload.(*protocol.RoomResponse)
		resp.Action = act
		resp.Success = true
		res.Response.RequestID = msg.RequestID
		return res, nil
	}
}

func requireRoomID(req *protocol.RoomRequest) error {
	if req.RoomID == "" {
		return validationError("roomId is required")
	}
	return nil
}

func roomResponse(rm room.Room, message string) *protocol.Message {
	return protocol.NewMessage(protocol.TypeRoomResponse, &protocol.RoomResponse{
		RoomID:      rm.ID,
		RoomName:    rm.Name,
		Description: rm.Description,
		Private:     rm.Private,
		Message:     message,
	})
}

func (r *Router) createRoom(ctx context.Context, s *chat.Session, req *protocol.RoomRequest) (Result, error) {
	rm, err := r.CreateRoom(ctx, room.CreateParams{
		ID:          req.RoomID,
		Name:        req.RoomName,
		Description: req.Description,
		CreatorID:   s.UserID(),
		Private:     req.Private,
	})
	if errors.Is(err, room.ErrRoomExists) {
		return Result{}, &Error{Kind: KindResource, Status: protocol.StatusRoomAlreadyExist, Message: "Room already exists"}
	}
	if err != nil {
		return Result{}, internalError(err)
	}
	return Result{Response: roomResponse(rm, "Room created")}, nil
}

// CreateRoom creates a room and adds it to the room cache of every local
// session of the creator.
func (r *Router) CreateRoom(ctx context.Context, p room.CreateParams) (room.Room, error) {
	rm, err := r.Rooms.Create(ctx, p)
	if err != nil {
		return room.Room{}, err
	}
	r.syncRoomCache(p.CreatorID, rm.ID, true)
	return rm, nil
}

func (r *Router) joinRoom(ctx context.Context, s *chat.Session, req *protocol.RoomRequest) (Result, error) {
	if err := requireRoomID(req); err != nil {
		return Result{}, err
	}
	rm, err := r.getRoom(ctx, req.RoomID)
	if err != nil {
		return Result{}, err
	}
	uid := s.UserID()
	changed, err := r.Rooms.Join(ctx, rm.ID, uid)
	if errors.Is(err, room.ErrRoomNotFound) {
		return Result{}, roomNotFound()
	}
	if err != nil {
		return Result{}, internalError(err)
	}

	res := Result{Response: roomResponse(rm, "Joined room")}
	if !changed {
		res.Response.Payload.(*protocol.RoomResponse).Message = "Already a member"
		return res, nil
	}
	r.syncRoomCache(uid, rm.ID, true)
	res.Deliveries = r.systemNotice(ctx, rm.ID, uid, fmt.Sprintf("%s joined the room", displayName(s)))
	return res, nil
}

func (r *Router) leaveRoom(ctx context.Context, s *chat.Session, req *protocol.RoomRequest) (Result, error) {
	if err := requireRoomID(req); err != nil {
		return Result{}, err
	}
	rm, err := r.getRoom(ctx, req.RoomID)
	if err != nil {
		return Result{}, err
	}
	uid := s.UserID()
	changed, err := r.Rooms.Leave(ctx, rm.ID, uid)
	if errors.Is(err, room.ErrRoomNotFound) {
		return Result{}, roomNotFound()
	}
	if err != nil {
		return Result{}, internalError(err)
	}

	res := Result{Response: roomResponse(rm, "Left room")}
	if !changed {
		res.Response.Payload.(*protocol.RoomResponse).Message = "Not a member"
		return res, nil
	}
	r.syncRoomCache(uid, rm.ID, false)
	res.Deliveries = r.systemNotice(ctx, rm.ID, uid, fmt.Sprintf("%s left the room", displayName(s)))
	return res, nil
}

func (r *Router) listRooms(ctx context.Context, s *chat.Session) (Result, error) {
	rooms, err := r.Rooms.List(ctx)
	if err != nil {
		return Result{}, internalError(err)
	}
	infos := make([]protocol.RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		if rm.Private && !s.HasRoom(rm.ID) {
			continue
		}
		infos = append(infos, RoomInfo(rm))
	}
	resp := protocol.NewMessage(protocol.TypeRoomResponse, &protocol.RoomResponse{Rooms: infos})
	return Result{Response: resp}, nil
}

func (r *Router) roomMembers(ctx context.Context, s *chat.Session, req *protocol.RoomRequest) (Result, error) {
	if err := requireRoomID(req); err != nil {
		return Result{}, err
	}
	rm, err := r.getRoom(ctx, req.RoomID)
	if err != nil {
		return Result{}, err
	}
	members, err := r.Rooms.Members(ctx, rm.ID)
	if errors.Is(err, room.ErrRoomNotFound) {
		return Result{}, roomNotFound()
	}
	if err != nil {
		return Result{}, internalError(err)
	}
	if rm.Private && !contains(members, s.UserID()) {
		return Result{}, &Error{Kind: KindForbidden, Message: "Not a member of this room"}
	}
	resp := roomResponse(rm, "")
	resp.Payload.(*protocol.RoomResponse).Members = members
	return Result{Response: resp}, nil
}

func (r *Router) deleteRoom(ctx context.Context, s *chat.Session, req *protocol.RoomRequest) (Result, error) {
	if err := requireRoomID(req); err != nil {
		return Result{}, err
	}
	rm, err := r.getRoom(ctx, req.RoomID)
	if err != nil {
		return Result{}, err
	}
	uid := s.UserID()
	members, err := r.Rooms.Delete(ctx, rm.ID, uid)
	switch {
	case errors.Is(err, room.ErrNotCreator):
		return Result{}, &Error{Kind: KindForbidden, Message: "Only the room creator can delete it"}
	case errors.Is(err, room.ErrRoomNotFound):
		return Result{}, roomNotFound()
	case err != nil:
		return Result{}, internalError(err)
	}

	return Result{
		Response:   roomResponse(rm, "Room deleted"),
		Deliveries: r.roomDeleted(rm, members, uid),
	}, nil
}

// DeleteRoom deletes a room on behalf of userID and notifies its former
// members. It returns room.ErrNotCreator or room.ErrRoomNotFound unchanged.
func (r *Router) DeleteRoom(ctx context.Context, roomID, userID string) error {
	rm, err := r.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	members, err := r.Rooms.Delete(ctx, roomID, userID)
	if err != nil {
		return err
	}
	for _, d := range r.roomDeleted(rm, members, userID) {
		r.Broadcaster.Deliver(ctx, d)
	}
	return nil
}

// roomDeleted clears the room from the caches of its former members and
// builds the notice for everyone but actor.
func (r *Router) roomDeleted(rm room.Room, members []string, actor string) []Delivery {
	var others []string
	for _, m := range members {
		r.syncRoomCache(m, rm.ID, false)
		if m != actor {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return nil
	}
	return []Delivery{{
		Message: protocol.NewMessage(protocol.TypeSystem, &protocol.SystemMessage{
			Title:     "room",
			Message:   fmt.Sprintf("Room %s was deleted", rm.Name),
			Level:     "info",
			RoomID:    rm.ID,
			Timestamp: r.now().UnixMilli(),
		}),
		UserIDs: others,
	}}
}

func (r *Router) getRoom(ctx context.Context, id string) (room.Room, error) {
	rm, err := r.Rooms.Get(ctx, id)
	if errors.Is(err, room.ErrRoomNotFound) {
		return room.Room{}, roomNotFound()
	}
	if err != nil {
		return room.Room{}, internalError(err)
	}
	return rm, nil
}

// systemNotice builds a SYSTEM delivery to the current members of a room
// other than actor.
func (r *Router) systemNotice(ctx context.Context, roomID, actor, text string) []Delivery {
	members, err := r.Rooms.Members(ctx, roomID)
	if err != nil {
		return nil
	}
	var others []string
	for _, m := range members {
		if m != actor {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return nil
	}
	return []Delivery{{
		Message: protocol.NewMessage(protocol.TypeSystem, &protocol.SystemMessage{
			Title:     "room",
			Message:   text,
			Level:     "info",
			RoomID:    roomID,
			Timestamp: r.now().UnixMilli(),
		}),
		UserIDs: others,
	}}
}

// syncRoomCache applies a membership change to every local session of a
// user.
func (r *Router) syncRoomCache(userID, roomID string, joined bool) {
	for _, cs := range r.sessionsOf(userID) {
		if joined {
			cs.AddRoom(roomID)
		} else {
			cs.RemoveRoom(roomID)
		}
	}
}

// RoomInfo converts a room to its wire description.
func RoomInfo(rm room.Room) protocol.RoomInfo {
	return protocol.RoomInfo{
		RoomID:      rm.ID,
		RoomName:    rm.Name,
		Description: rm.Description,
		CreatorID:   rm.CreatorID,
		Private:     rm.Private,
		CreatedAt:   rm.CreatedAt.UnixMilli(),
	}
}

func displayName(s *chat.Session) string {
	if name := s.Username(); name != "" {
		return name
	}
	return s.UserID()
}
