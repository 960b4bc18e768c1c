package room

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps everything in process memory. One lock covers both
// indices.
type MemoryStore struct {
	mu        sync.RWMutex
	rooms     map[string]Room
	members   map[string]map[string]struct{}
	userRooms map[string]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[string]Room),
		members:   make(map[string]map[string]struct{}),
		userRooms: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) CreateRoom(_ context.Context, r Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; ok {
		return ErrRoomExists
	}
	m.rooms[r.ID] = r
	m.members[r.ID] = make(map[string]struct{})
	return nil
}

func (m *MemoryStore) GetRoom(_ context.Context, id string) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return r, nil
}

func (m *MemoryStore) ListRooms(_ context.Context) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sortRooms(out)
	return out, nil
}

func (m *MemoryStore) DeleteRoom(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	for userID := range m.members[id] {
		m.unlinkUser(userID, id)
	}
	delete(m.members, id)
	delete(m.rooms, id)
	return nil
}

func (m *MemoryStore) AddMember(_ context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if _, ok := set[userID]; ok {
		return false, nil
	}
	set[userID] = struct{}{}
	rooms, ok := m.userRooms[userID]
	if !ok {
		rooms = make(map[string]struct{})
		m.userRooms[userID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) RemoveMember(_ context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.members[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if _, ok := set[userID]; !ok {
		return false, nil
	}
	delete(set, userID)
	m.unlinkUser(userID, roomID)
	return true, nil
}

// unlinkUser drops roomID from the user's index. Caller holds m.mu.
func (m *MemoryStore) unlinkUser(userID, roomID string) {
	rooms := m.userRooms[userID]
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(m.userRooms, userID)
	}
}

func (m *MemoryStore) Members(_ context.Context, roomID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.members[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return sortedKeys(set), nil
}

func (m *MemoryStore) RoomsOf(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.userRooms[userID]), nil
}

func (m *MemoryStore) Close() error { return nil }

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortRooms(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}
