package protocol

import (
	"fmt"
	"sync"
)

// Entry describes how to materialize the payload of one message type.
type Entry struct {
	Name string
	// New returns a pointer to a zero payload value to decode into.
	New func() any
}

// Registry maps message type codes to payload constructors.
type Registry struct {
	mu      sync.RWMutex
	entries map[MessageType]Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[MessageType]Entry),
	}
}

// Register binds a message type to its payload constructor.
// Registering the same code twice is an error.
func (r *Registry) Register(t MessageType, e Entry) error {
	if e.New == nil {
		return fmt.Errorf("register %s: nil constructor", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t]; ok {
		return fmt.Errorf("register %s: code %d already registered", t, uint8(t))
	}
	if e.Name == "" {
		e.Name = t.String()
	}
	r.entries[t] = e
	return nil
}

// Resolve returns the entry registered for t.
func (r *Registry) Resolve(t MessageType) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e, ok
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// DefaultRegistry returns a registry with every built-in message type bound.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for t, fn := range map[MessageType]func() any{
		TypeChatRequest:       func() any { return &ChatRequest{} },
		TypeChatResponse:      func() any { return &ChatResponse{} },
		TypeLoginRequest:      func() any { return &LoginRequest{} },
		TypeLoginResponse:     func() any { return &LoginResponse{} },
		TypeLogoutRequest:     func() any { return &LogoutRequest{} },
		TypeLogoutResponse:    func() any { return &LogoutResponse{} },
		TypeRoomCreate:        func() any { return &RoomRequest{} },
		TypeRoomJoin:          func() any { return &RoomRequest{} },
		TypeRoomLeave:         func() any { return &RoomRequest{} },
		TypeRoomList:          func() any { return &RoomRequest{} },
		TypeRoomRequest:       func() any { return &RoomRequest{} },
		TypeRoomResponse:      func() any { return &RoomResponse{} },
		TypeHeartbeatRequest:  func() any { return &HeartbeatRequest{} },
		TypeHeartbeatResponse: func() any { return &HeartbeatResponse{} },
		TypeHistoryRequest:    func() any { return &HistoryRequest{} },
		TypeHistoryResponse:   func() any { return &HistoryResponse{} },
		TypeError:             func() any { return &ErrorMessage{} },
		TypeSystem:            func() any { return &SystemMessage{} },
		TypeNotification:      func() any { return &NotificationMessage{} },
		TypeNewMessage:        func() any { return &ChatDelivery{} },
		TypePresence:          func() any { return &PresenceNotice{} },
	} {
		// Codes are unique within this table.
		_ = r.Register(t, Entry{Name: t.String(), New: fn})
	}
	return r
}
