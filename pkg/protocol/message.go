// Package protocol implements the framechat wire format: a fixed 49-byte
// big-endian header followed by a JSON body whose shape is selected by the
// message type through a Registry.
package protocol

import "fmt"

// MessageType identifies the payload carried by a frame.
// Values are part of the wire format and must not be reordered.
type MessageType uint8

const (
	TypeChatRequest MessageType = iota
	TypeChatResponse
	TypeLoginRequest
	TypeLoginResponse
	TypeLogoutRequest
	TypeLogoutResponse
	TypeRoomCreate
	TypeRoomJoin
	TypeRoomLeave
	TypeRoomList
	TypeRoomRequest
	TypeRoomResponse
	TypeHeartbeatRequest
	TypeHeartbeatResponse
	TypeHistoryRequest
	TypeHistoryResponse
	TypeError
	TypeSystem
	TypeNotification
	TypeNewMessage
	TypePresence
)

var typeNames = [...]string{
	TypeChatRequest:       "CHAT_REQUEST",
	TypeChatResponse:      "CHAT_RESPONSE",
	TypeLoginRequest:      "LOGIN_REQUEST",
	TypeLoginResponse:     "LOGIN_RESPONSE",
	TypeLogoutRequest:     "LOGOUT_REQUEST",
	TypeLogoutResponse:    "LOGOUT_RESPONSE",
	TypeRoomCreate:        "ROOM_CREATE",
	TypeRoomJoin:          "ROOM_JOIN",
	TypeRoomLeave:         "ROOM_LEAVE",
	TypeRoomList:          "ROOM_LIST",
	TypeRoomRequest:       "ROOM_REQUEST",
	TypeRoomResponse:      "ROOM_RESPONSE",
	TypeHeartbeatRequest:  "HEARTBEAT_REQUEST",
	TypeHeartbeatResponse: "HEARTBEAT_RESPONSE",
	TypeHistoryRequest:    "MESSAGE_HISTORY_REQUEST",
	TypeHistoryResponse:   "MESSAGE_HISTORY_RESPONSE",
	TypeError:             "ERROR",
	TypeSystem:            "SYSTEM",
	TypeNotification:      "NOTIFICATION",
	TypeNewMessage:        "NEW_MESSAGE",
	TypePresence:          "PRESENCE",
}

// String returns the wire name of the message type.
func (t MessageType) String() string {
	if int(t) < len(typeNames) && typeNames[t] != "" {
		return typeNames[t]
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Message is a decoded frame. Payload holds a pointer to the struct
// registered for Type (for example *ChatRequest for TypeChatRequest).
type Message struct {
	Type       MessageType
	StatusCode StatusCode
	RequestID  string
	Payload    any
}

// NewMessage creates a message with StatusOK and no request id.
// The codec assigns a request id when the message is encoded.
func NewMessage(t MessageType, payload any) *Message {
	return &Message{
		Type:       t,
		StatusCode: StatusOK,
		Payload:    payload,
	}
}

// Reply creates a response carrying the request id of m.
func (m *Message) Reply(t MessageType, status StatusCode, payload any) *Message {
	return &Message{
		Type:       t,
		StatusCode: status,
		RequestID:  m.RequestID,
		Payload:    payload,
	}
}

// NewError creates an ERROR message whose header status matches the payload code.
func NewError(requestID string, status StatusCode, text string) *Message {
	return &Message{
		Type:       TypeError,
		StatusCode: status,
		RequestID:  requestID,
		Payload: &ErrorMessage{
			Code:    int(status),
			Message: text,
		},
	}
}
