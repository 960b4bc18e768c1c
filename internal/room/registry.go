package room

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/omochice/framechat/internal/logging"
)

// CreateParams describes a room to create.
type CreateParams struct {
	// ID is optional; a random id is generated when empty.
	ID          string
	Name        string
	Description string
	CreatorID   string
	Private     bool
}

// Registry is the room API used by the router. It serializes mutations of
// one room with striped locks so that a read-then-write sequence against the
// store (create then join, check creator then delete) is not interleaved.
type Registry struct {
	store   Store
	stripes []sync.Mutex
	now     func() time.Time
}

// NewRegistry wraps store. Non-positive stripes means 64 lock stripes.
func NewRegistry(store Store, stripes int) *Registry {
	if stripes <= 0 {
		stripes = 64
	}
	return &Registry{
		store:   store,
		stripes: make([]sync.Mutex, stripes),
		now:     time.Now,
	}
}

func (r *Registry) lock(roomID string) func() {
	m := &r.stripes[xxhash.Sum64String(roomID)%uint64(len(r.stripes))]
	m.Lock()
	return m.Unlock
}

// Create creates a room and joins its creator to it.
func (r *Registry) Create(ctx context.Context, p CreateParams) (Room, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	unlock := r.lock(p.ID)
	defer unlock()

	rm := Room{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatorID:   p.CreatorID,
		Private:     p.Private,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.CreateRoom(ctx, rm); err != nil {
		return Room{}, err
	}
	if p.CreatorID != "" {
		if _, err := r.store.AddMember(ctx, rm.ID, p.CreatorID); err != nil {
			// A room never exists without its creator.
			if derr := r.store.DeleteRoom(ctx, rm.ID); derr != nil {
				logging.Ctx(ctx).Error().Err(derr).Str("room_id", rm.ID).Msg("failed to roll back room creation")
			}
			return Room{}, err
		}
	}
	logging.Ctx(ctx).Info().
		Str("room_id", rm.ID).
		Str("creator_id", rm.CreatorID).
		Msg("room created")
	return rm, nil
}

// Join adds userID to the room and reports whether membership changed.
func (r *Registry) Join(ctx context.Context, roomID, userID string) (bool, error) {
	unlock := r.lock(roomID)
	defer unlock()
	return r.store.AddMember(ctx, roomID, userID)
}

// Leave removes userID from the room and reports whether membership changed.
func (r *Registry) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	unlock := r.lock(roomID)
	defer unlock()
	return r.store.RemoveMember(ctx, roomID, userID)
}

// Delete removes a room on behalf of userID, who must be its creator. It
// returns the members the room had.
func (r *Registry) Delete(ctx context.Context, roomID, userID string) ([]string, error) {
	unlock := r.lock(roomID)
	defer unlock()

	rm, err := r.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if rm.CreatorID != userID {
		return nil, ErrNotCreator
	}
	members, err := r.store.Members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := r.store.DeleteRoom(ctx, roomID); err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("room_id", roomID).Int("members", len(members)).Msg("room deleted")
	return members, nil
}

// Get returns one room.
func (r *Registry) Get(ctx context.Context, roomID string) (Room, error) {
	return r.store.GetRoom(ctx, roomID)
}

// List returns every room ordered by creation time.
func (r *Registry) List(ctx context.Context) ([]Room, error) {
	return r.store.ListRooms(ctx)
}

// Members returns the sorted member ids of a room.
func (r *Registry) Members(ctx context.Context, roomID string) ([]string, error) {
	return r.store.Members(ctx, roomID)
}

// RoomsOf returns the sorted room ids of a user.
func (r *Registry) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	return r.store.RoomsOf(ctx, userID)
}

// IsMember reports whether userID belongs to the room.
func (r *Registry) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	members, err := r.store.Members(ctx, roomID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
