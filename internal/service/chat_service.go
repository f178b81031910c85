package service

import (
	"context"
	"time"

	"github.com/tmdavis2/pit-portal/internal/domain"
	"github.com/tmdavis2/pit-portal/internal/observability"
)

const maxMessageLength = 1000

type ChatService struct {
	messageRepo domain.MessageRepository
}

func NewChatService(messageRepo domain.MessageRepository) *ChatService {
	return &ChatService{
		messageRepo: messageRepo,
	}
}

// SaveMessage validates and persists a chat message. The message must be
// durably stored before the caller broadcasts it.
func (s *ChatService) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if msg.RoomID == "" || msg.Username == "" {
		return domain.ErrInvalidInput
	}
	if len(msg.Content) == 0 || len(msg.Content) > maxMessageLength {
		return domain.ErrInvalidInput
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return err
	}
	observability.MessagesPersisted.WithLabelValues(msg.RoomID).Inc()
	return nil
}

// RoomHistory returns the most recent messages in a room, oldest first.
func (s *ChatService) RoomHistory(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messageRepo.GetByRoom(ctx, roomID, limit)
}

// RoomSummary is a room a user has participated in, with a display name
// resolved from that user's perspective.
type RoomSummary struct {
	RoomID      string    `json:"room_id"`
	DisplayName string    `json:"display_name"`
	LastMessage time.Time `json:"last_message"`
}

// RecentRooms lists the rooms a user has posted in, most recent activity
// first. DM rooms display as the other participant's username.
func (s *ChatService) RecentRooms(ctx context.Context, username string) ([]*RoomSummary, error) {
	activity, err := s.messageRepo.RecentRooms(ctx, username)
	if err != nil {
		return nil, err
	}

	rooms := make([]*RoomSummary, 0, len(activity))
	for _, a := range activity {
		rooms = append(rooms, &RoomSummary{
			RoomID:      a.RoomID,
			DisplayName: RoomDisplayName(a.RoomID, username),
			LastMessage: a.LastMessage,
		})
	}
	return rooms, nil
}
