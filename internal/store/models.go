// Package store persists chat messages and user accounts.
package store

import (
	"context"
	"time"
)

// Record is one chat message as stored for history.
type Record struct {
	ID         string    `gorm:"primaryKey;size:36"`
	SenderID   string    `gorm:"size:64;not null;index:idx_private,priority:1"`
	ReceiverID string    `gorm:"size:64;index:idx_private,priority:2"`
	RoomID     string    `gorm:"size:64;index:idx_room_time,priority:1"`
	Content    string    `gorm:"type:text;not null"`
	Kind       string    `gorm:"size:16;not null;default:text"`
	CreatedAt  time.Time `gorm:"not null;index:idx_room_time,priority:2;index:idx_private,priority:3"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return "messages" }

// User is a registered account.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string    `gorm:"not null"`
	Avatar       string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"not null"`
}

// HistoryQuery selects messages of one room or of one private conversation.
type HistoryQuery struct {
	// RoomID selects room history. When empty, UserID and PeerID select the
	// private conversation between them.
	RoomID string
	UserID string
	PeerID string
	// Start and End bound CreatedAt inclusively. Zero values are unbounded.
	Start time.Time
	End   time.Time
	Limit int
}

// MessageStore is the message history backend.
type MessageStore interface {
	Persist(ctx context.Context, r Record) error
	QueryHistory(ctx context.Context, q HistoryQuery) ([]Record, bool, error)
}

// UserDirectory resolves user profiles.
type UserDirectory interface {
	LookupUser(ctx context.Context, id string) (User, error)
}
