package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

// Message represents a persisted chat message. Messages are append-only:
// once created they are never updated or deleted.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomActivity summarizes a room a user has posted in, keyed by the
// timestamp of the most recent message in it.
type RoomActivity struct {
	RoomID      string    `json:"room_id"`
	LastMessage time.Time `json:"last_message"`
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	GetByRoom(ctx context.Context, roomID string, limit int) ([]*Message, error)
	RecentRooms(ctx context.Context, username string) ([]*RoomActivity, error)
}
