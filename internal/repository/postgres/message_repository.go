package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tmdavis2/pit-portal/internal/domain"
)

// MessageRepository implements domain.MessageRepository for PostgreSQL.
// The messages table is append-only: no update or delete path exists.
type MessageRepository struct {
	db              *sql.DB
	createStmt      *sql.Stmt
	getByRoomStmt   *sql.Stmt
	recentRoomsStmt *sql.Stmt
}

// NewMessageRepository creates a new PostgreSQL message repository with
// prepared statements. Returns an error if statement preparation fails.
func NewMessageRepository(db *sql.DB) (*MessageRepository, error) {
	repo := &MessageRepository{db: db}

	var err error
	repo.createStmt, err = db.Prepare(`
		INSERT INTO messages (room_id, username, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	repo.getByRoomStmt, err = db.Prepare(`
		SELECT id, room_id, username, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare getByRoom statement: %w", err)
	}

	repo.recentRoomsStmt, err = db.Prepare(`
		SELECT room_id, MAX(created_at) AS last_message
		FROM messages
		WHERE username = $1
		GROUP BY room_id
		ORDER BY last_message DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare recentRooms statement: %w", err)
	}

	return repo, nil
}

// Create inserts a new message. The server assigns id and created_at at
// persistence time.
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	err := r.createStmt.QueryRowContext(ctx,
		message.RoomID,
		message.Username,
		message.Content,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByRoom retrieves the most recent messages for a room, oldest first
func (r *MessageRepository) GetByRoom(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	rows, err := r.getByRoomStmt.QueryContext(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		msg := &domain.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.RoomID,
			&msg.Username,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Reverse the slice to get oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// RecentRooms returns the rooms a user has posted in, most recent
// activity first.
func (r *MessageRepository) RecentRooms(ctx context.Context, username string) ([]*domain.RoomActivity, error) {
	rows, err := r.recentRoomsStmt.QueryContext(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*domain.RoomActivity, 0)
	for rows.Next() {
		activity := &domain.RoomActivity{}
		if err := rows.Scan(&activity.RoomID, &activity.LastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan room activity: %w", err)
		}
		rooms = append(rooms, activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent rooms: %w", err)
	}

	return rooms, nil
}
