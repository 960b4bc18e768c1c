package protocol

// ChatRequest sends a message to exactly one of a room or a user.
type ChatRequest struct {
	Sender     string `json:"sender,omitempty"`
	Content    string `json:"content" validate:"required,max=4096"`
	RoomID     string `json:"roomId,omitempty" validate:"omitempty,max=64"`
	ReceiverID string `json:"receiverId,omitempty" validate:"omitempty,max=64"`
	Kind       string `json:"kind,omitempty" validate:"omitempty,oneof=text image file system"`
}

// ChatResponse acknowledges a ChatRequest.
type ChatResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// LoginRequest authenticates a connection either by token or by
// username and password.
type LoginRequest struct {
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty" validate:"omitempty,max=64"`
	Password string `json:"password,omitempty" validate:"omitempty,max=128"`
	DeviceID string `json:"deviceId,omitempty" validate:"omitempty,max=128"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LogoutRequest ends the authenticated session.
type LogoutRequest struct{}

// LogoutResponse is sent right before the connection closes.
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Room actions carried by RoomRequest.Action for TypeRoomRequest frames.
const (
	RoomActionCreate  = "create"
	RoomActionJoin    = "join"
	RoomActionLeave   = "leave"
	RoomActionList    = "list"
	RoomActionMembers = "members"
	RoomActionDelete  = "delete"
)

// RoomRequest is the payload of every room operation.
type RoomRequest struct {
	Action      string `json:"action,omitempty" validate:"omitempty,oneof=create join leave list members delete"`
	RoomID      string `json:"roomId,omitempty" validate:"omitempty,max=64"`
	RoomName    string `json:"roomName,omitempty" validate:"omitempty,max=128"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1024"`
	Private     bool   `json:"private,omitempty"`
}

// RoomInfo describes a room in listings.
type RoomInfo struct {
	RoomID      string `json:"roomId"`
	RoomName    string `json:"roomName"`
	Description string `json:"description,omitempty"`
	CreatorID   string `json:"creatorId,omitempty"`
	Private     bool   `json:"private,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
}

// RoomResponse answers a RoomRequest.
type RoomResponse struct {
	Action      string     `json:"action,omitempty"`
	RoomID      string     `json:"roomId,omitempty"`
	RoomName    string     `json:"roomName,omitempty"`
	Description string     `json:"description,omitempty"`
	Private     bool       `json:"private,omitempty"`
	Success     bool       `json:"success"`
	Message     string     `json:"message,omitempty"`
	Rooms       []RoomInfo `json:"rooms,omitempty"`
	Members     []string   `json:"members,omitempty"`
}

// HeartbeatRequest keeps a session alive.
type HeartbeatRequest struct{}

// HeartbeatResponse carries the server clock in unix milliseconds.
type HeartbeatResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// HistoryRequest queries stored messages of a room or of a private
// conversation with PeerID. Times are unix milliseconds.
type HistoryRequest struct {
	RoomID    string `json:"roomId,omitempty"`
	PeerID    string `json:"peerId,omitempty"`
	StartTime int64  `json:"startTime,omitempty" validate:"gte=0"`
	EndTime   int64  `json:"endTime,omitempty" validate:"gte=0"`
	Limit     int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

// HistoryResponse returns messages in chronological order.
type HistoryResponse struct {
	RoomID   string         `json:"roomId,omitempty"`
	PeerID   string         `json:"peerId,omitempty"`
	Messages []ChatDelivery `json:"messages"`
	HasMore  bool           `json:"hasMore"`
}

// ErrorMessage is the payload of TypeError frames.
type ErrorMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SystemMessage announces room events such as joins and leaves.
type SystemMessage struct {
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Level     string `json:"level,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NotificationMessage is a free-form server notice.
type NotificationMessage struct {
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
	Level     string `json:"level,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// UserProfile decorates deliveries with sender details.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ChatDelivery is pushed to recipients of a chat message.
type ChatDelivery struct {
	MessageID  string       `json:"messageId"`
	SenderID   string       `json:"senderId"`
	Sender     *UserProfile `json:"sender,omitempty"`
	Content    string       `json:"content"`
	Kind       string       `json:"kind,omitempty"`
	RoomID     string       `json:"roomId,omitempty"`
	ReceiverID string       `json:"receiverId,omitempty"`
	Timestamp  int64        `json:"timestamp"`
}

// PresenceNotice reports a user's online state change.
type PresenceNotice struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	Online    bool   `json:"online"`
	Timestamp int64  `json:"timestamp"`
}
