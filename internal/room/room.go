// Package room keeps rooms and their membership.
//
// Membership is stored in two indices, room to members and user to rooms.
// Every Store updates both in one atomic step so that a user is a member of
// a room exactly when the room is listed among the user's rooms.
package room

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRoomExists is returned when creating a room whose id is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrRoomNotFound is returned for operations on an unknown room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotCreator is returned when someone other than the creator deletes
	// a room.
	ErrNotCreator = errors.New("only the room creator can do that")
)

// Room is a named group of users.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatorID   string    `json:"creatorId"`
	Private     bool      `json:"private"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists rooms and both membership indices.
type Store interface {
	// CreateRoom stores r or returns ErrRoomExists.
	CreateRoom(ctx context.Context, r Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	// DeleteRoom removes the room and every membership entry in both indices.
	DeleteRoom(ctx context.Context, id string) error

	// AddMember reports whether the user was not yet a member.
	AddMember(ctx context.Context, roomID, userID string) (bool, error)
	// RemoveMember reports whether the user was a member.
	RemoveMember(ctx context.Context, roomID, userID string) (bool, error)
	// Members returns the sorted member ids of a room.
	Members(ctx context.Context, roomID string) ([]string, error)
	// RoomsOf returns the sorted ids of the rooms the user belongs to.
	RoomsOf(ctx context.Context, userID string) ([]string, error)

	Close() error
}
