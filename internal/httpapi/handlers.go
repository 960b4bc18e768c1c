package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/internal/router"
	"github.com/omochice/framechat/internal/store"
	"github.com/omochice/framechat/pkg/protocol"
)

type healthResponse struct {
	Status      string `json:"status"`
	Accepting   bool   `json:"accepting"`
	Sessions    int    `json:"sessions"`
	OnlineUsers int    `json:"onlineUsers"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Accepting: true}
	if a.Status != nil {
		resp.Accepting = a.Status.Accepting()
		resp.Sessions = a.Status.SessionCount()
		resp.OnlineUsers = a.Status.OnlineUsers()
	}
	status := http.StatusOK
	if !resp.Accepting {
		resp.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

type credentials struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Avatar   string `json:"avatar,omitempty" validate:"omitempty,max=255"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "Accounts are not available", nil)
		return
	}
	var req credentials
	if !a.decodeJSON(w, r, &req) {
		return
	}
	u, err := a.Accounts.Register(r.Context(), req.Username, req.Password, req.Avatar)
	if errors.Is(err, store.ErrUserExists) {
		respondError(w, http.StatusConflict, "user_exists", "Username is taken", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Registration failed", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	respondJSON(w, http.StatusCreated, userResponse{ID: u.ID, Username: u.Username, Avatar: u.Avatar})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "Accounts are not available", nil)
		return
	}
	var req credentials
	if !a.decodeJSON(w, r, &req) {
		return
	}
	id, token, err := a.Accounts.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Login failed", err)
		return
	}
	respondJSON(w, http.StatusOK, protocol.LoginResponse{Token: token, UserID: id.UserID, Username: id.Username})
}

type roomsResponse struct {
	Rooms []protocol.RoomInfo `json:"rooms"`
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := identity(r).UserID
	rooms, err := a.Rooms.List(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Listing rooms failed", err)
		return
	}
	mine, err := a.Rooms.RoomsOf(ctx, uid)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Listing rooms failed", err)
		return
	}
	member := make(map[string]bool, len(mine))
	for _, id := range mine {
		member[id] = true
	}
	infos := make([]protocol.RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		if rm.Private && !member[rm.ID] {
			continue
		}
		infos = append(infos, router.RoomInfo(rm))
	}
	respondJSON(w, http.StatusOK, roomsResponse{Rooms: infos})
}

type createRoomRequest struct {
	ID          string `json:"roomId,omitempty" validate:"omitempty,max=64"`
	Name        string `json:"roomName,omitempty" validate:"omitempty,max=128"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1024"`
	Private     bool   `json:"private,omitempty"`
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	rm, err := a.Admin.CreateRoom(r.Context(), room.CreateParams{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   identity(r).UserID,
		Private:     req.Private,
	})
	if errors.Is(err, room.ErrRoomExists) {
		respondError(w, http.StatusConflict, "room_exists", "Room already exists", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Creating room failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, router.RoomInfo(rm))
}

// visibleRoom loads the room in the URL, hiding private rooms from
// non-members. It writes the error response itself.
func (a *API) visibleRoom(w http.ResponseWriter, r *http.Request) (room.Room, bool) {
	ctx := r.Context()
	rm, err := a.Rooms.Get(ctx, chi.URLParam(r, "roomID"))
	if errors.Is(err, room.ErrRoomNotFound) {
		respondError(w, http.StatusNotFound, "room_not_found", "Room does not exist", nil)
		return room.Room{}, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Loading room failed", err)
		return room.Room{}, false
	}
	if rm.Private {
		ok, err := a.Rooms.IsMember(ctx, rm.ID, identity(r).UserID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal", "Loading room failed", err)
			return room.Room{}, false
		}
		if !ok {
			respondError(w, http.StatusForbidden, "forbidden", "Not a member of this room", nil)
			return room.Room{}, false
		}
	}
	return rm, true
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.visibleRoom(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, router.RoomInfo(rm))
}

func (a *API) deleteRoom(w http.ResponseWriter, r *http.Request) {
	err := a.Admin.DeleteRoom(r.Context(), chi.URLParam(r, "roomID"), identity(r).UserID)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, "room_not_found", "Room does not exist", nil)
	case errors.Is(err, room.ErrNotCreator):
		respondError(w, http.StatusForbidden, "forbidden", "Only the room creator can delete it", nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal", "Deleting room failed", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type membersResponse struct {
	RoomID  string   `json:"roomId"`
	Members []string `json:"members"`
}

func (a *API) roomMembers(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.visibleRoom(w, r)
	if !ok {
		return
	}
	members, err := a.Rooms.Members(r.Context(), rm.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Listing members failed", err)
		return
	}
	respondJSON(w, http.StatusOK, membersResponse{RoomID: rm.ID, Members: members})
}

func (a *API) roomMessages(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "History is not available", nil)
		return
	}
	ctx := r.Context()
	roomID := chi.URLParam(r, "roomID")
	ok, err := a.Rooms.IsMember(ctx, roomID, identity(r).UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Loading room failed", err)
		return
	}
	if !ok {
		if _, err := a.Rooms.Get(ctx, roomID); errors.Is(err, room.ErrRoomNotFound) {
			respondError(w, http.StatusNotFound, "room_not_found", "Room does not exist", nil)
			return
		}
		respondError(w, http.StatusForbidden, "forbidden", "Not a member of this room", nil)
		return
	}

	q := store.HistoryQuery{RoomID: roomID}
	var bad bool
	q.Limit, bad = intParam(r, "limit", bad)
	start, bad := intParam(r, "start", bad)
	end, bad := intParam(r, "end", bad)
	if bad || q.Limit < 0 || q.Limit > store.MaxHistoryLimit || (end > 0 && start > end) {
		respondError(w, http.StatusBadRequest, "validation_error", "Invalid limit, start or end", nil)
		return
	}
	if start > 0 {
		q.Start = time.UnixMilli(int64(start))
	}
	if end > 0 {
		q.End = time.UnixMilli(int64(end))
	}

	records, hasMore, err := a.History.QueryHistory(ctx, q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Loading history failed", err)
		return
	}
	messages := make([]protocol.ChatDelivery, 0, len(records))
	for _, rec := range records {
		messages = append(messages, router.ChatDelivery(rec))
	}
	respondJSON(w, http.StatusOK, protocol.HistoryResponse{RoomID: roomID, Messages: messages, HasMore: hasMore})
}

// intParam parses an optional non-negative integer query parameter. bad is
// carried through so several parameters can be checked at once.
func intParam(r *http.Request, name string, bad bool) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, bad
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, true
	}
	return n, bad
}
