package protocol_test

import (
	"reflect"
	"testing"

	"github.com/omochice/framechat/pkg/protocol"
)

const fixedRequestID = "8a1d5a3e-6d0f-4a4c-9d55-0d3f2b7d9c11"

func samplePayloads() map[protocol.MessageType]any {
	return map[protocol.MessageType]any{
		protocol.TypeChatRequest:       &protocol.ChatRequest{Sender: "alice", Content: "hello", RoomID: "R", Kind: "text"},
		protocol.TypeChatResponse:      &protocol.ChatResponse{Success: true, MessageID: "m-1", Timestamp: 1700000000000},
		protocol.TypeLoginRequest:      &protocol.LoginRequest{Username: "alice", Password: "secret", DeviceID: "phone"},
		protocol.TypeLoginResponse:     &protocol.LoginResponse{Token: "tok", UserID: "u-1", Username: "alice"},
		protocol.TypeLogoutRequest:     &protocol.LogoutRequest{},
		protocol.TypeLogoutResponse:    &protocol.LogoutResponse{Success: true, Message: "bye"},
		protocol.TypeRoomCreate:        &protocol.RoomRequest{RoomID: "R", RoomName: "Room R", Description: "d", Private: true},
		protocol.TypeRoomJoin:          &protocol.RoomRequest{RoomID: "R"},
		protocol.TypeRoomLeave:         &protocol.RoomRequest{RoomID: "R"},
		protocol.TypeRoomList:          &protocol.RoomRequest{},
		protocol.TypeRoomRequest:       &protocol.RoomRequest{Action: protocol.RoomActionMembers, RoomID: "R"},
		protocol.TypeRoomResponse:      &protocol.RoomResponse{Action: "list", Success: true, Rooms: []protocol.RoomInfo{{RoomID: "R", RoomName: "R"}}, Members: []string{"a", "b"}},
		protocol.TypeHeartbeatRequest:  &protocol.HeartbeatRequest{},
		protocol.TypeHeartbeatResponse: &protocol.HeartbeatResponse{ServerTime: 42},
		protocol.TypeHistoryRequest:    &protocol.HistoryRequest{RoomID: "R", StartTime: 1, EndTime: 2, Limit: 10},
		protocol.TypeHistoryResponse:   &protocol.HistoryResponse{RoomID: "R", Messages: []protocol.ChatDelivery{{MessageID: "m", SenderID: "a", Content: "x", Timestamp: 3}}, HasMore: true},
		protocol.TypeError:             &protocol.ErrorMessage{Code: 400, Message: "bad"},
		protocol.TypeSystem:            &protocol.SystemMessage{Message: "alice joined the room", RoomID: "R", Timestamp: 5},
		protocol.TypeNotification:      &protocol.NotificationMessage{Title: "t", Message: "m", Level: "info", Timestamp: 6},
		protocol.TypeNewMessage:        &protocol.ChatDelivery{MessageID: "m", SenderID: "a", Sender: &protocol.UserProfile{ID: "a", Username: "alice"}, Content: "hello", RoomID: "R", Timestamp: 7},
		protocol.TypePresence:          &protocol.PresenceNotice{UserID: "a", Username: "alice", Online: true, Timestamp: 8},
	}
}

func TestCodec_RoundTripEveryRegisteredType(t *testing.T) {
	codec := protocol.NewCodec(nil)
	payloads := samplePayloads()

	if got, want := codec.Registry().Len(), len(payloads); got != want {
		t.Fatalf("registry has %d types, samples cover %d", got, want)
	}

	for mt, payload := range payloads {
		t.Run(mt.String(), func(t *testing.T) {
			in := &protocol.Message{
				Type:       mt,
				StatusCode: protocol.StatusRoomAlreadyExist,
				RequestID:  fixedRequestID,
				Payload:    payload,
			}
			frame, err := codec.Encode(in)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			out, n, err := codec.Decode(frame)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if n != len(frame) {
				t.Errorf("Decode() consumed %d, want %d", n, len(frame))
			}
			if out.Type != in.Type {
				t.Errorf("Type = %v, want %v", out.Type, in.Type)
			}
			if out.StatusCode != in.StatusCode {
				t.Errorf("StatusCode = %d, want %d", out.StatusCode, in.StatusCode)
			}
			if out.RequestID != in.RequestID {
				t.Errorf("RequestID = %q, want %q", out.RequestID, in.RequestID)
			}
			if !reflect.DeepEqual(out.Payload, in.Payload) {
				t.Errorf("Payload = %#v, want %#v", out.Payload, in.Payload)
			}
		})
	}
}

func TestCodec_EncodeGeneratesRequestID(t *testing.T) {
	codec := protocol.NewCodec(nil)
	msg := protocol.NewMessage(protocol.TypeHeartbeatRequest, &protocol.HeartbeatRequest{})

	frame, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if msg.RequestID != "" {
		t.Errorf("Encode() modified the message request id to %q", msg.RequestID)
	}

	out, _, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out.RequestID) != protocol.RequestIDSize {
		t.Errorf("generated RequestID %q has length %d", out.RequestID, len(out.RequestID))
	}
}

func TestCodec_EncodeRejectsBadRequestID(t *testing.T) {
	codec := protocol.NewCodec(nil)
	msg := &protocol.Message{Type: protocol.TypeHeartbeatRequest, RequestID: "short"}

	if _, err := codec.Encode(msg); err == nil {
		t.Fatal("Encode() expected error for short request id")
	}
}

func TestCodec_NegativeStatusSurvives(t *testing.T) {
	codec := protocol.NewCodec(nil)
	msg := &protocol.Message{Type: protocol.TypeError, StatusCode: -2, Payload: &protocol.ErrorMessage{Code: -2}}

	frame, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, _, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.StatusCode != -2 {
		t.Errorf("StatusCode = %d, want -2", out.StatusCode)
	}
}

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		name string
		mt   protocol.MessageType
		want string
	}{
		{"chat request", protocol.TypeChatRequest, "CHAT_REQUEST"},
		{"history response", protocol.TypeHistoryResponse, "MESSAGE_HISTORY_RESPONSE"},
		{"presence", protocol.TypePresence, "PRESENCE"},
		{"unknown", protocol.MessageType(200), "UNKNOWN(200)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mt.String(); got != tt.want {
				t.Errorf("MessageType.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage_Reply(t *testing.T) {
	req := &protocol.Message{Type: protocol.TypeHeartbeatRequest, RequestID: fixedRequestID}
	resp := req.Reply(protocol.TypeHeartbeatResponse, protocol.StatusOK, &protocol.HeartbeatResponse{ServerTime: 1})

	if resp.RequestID != fixedRequestID {
		t.Errorf("Reply() RequestID = %q, want %q", resp.RequestID, fixedRequestID)
	}
	if resp.Type != protocol.TypeHeartbeatResponse {
		t.Errorf("Reply() Type = %v", resp.Type)
	}
}

func TestNewError(t *testing.T) {
	msg := protocol.NewError(fixedRequestID, protocol.StatusForbidden, "not a member")

	payload, ok := msg.Payload.(*protocol.ErrorMessage)
	if !ok {
		t.Fatalf("payload type = %T", msg.Payload)
	}
	if payload.Code != int(protocol.StatusForbidden) || msg.StatusCode != protocol.StatusForbidden {
		t.Errorf("code = %d, status = %d", payload.Code, msg.StatusCode)
	}
}
