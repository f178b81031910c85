// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the pit-portal chat backend.
package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmdavis2/pit-portal/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockNotFound       = errors.New("mock: not found")
)

// MockMessageRepository implements domain.MessageRepository for testing
type MockMessageRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc      func(ctx context.Context, message *domain.Message) error
	GetByRoomFunc   func(ctx context.Context, roomID string, limit int) ([]*domain.Message, error)
	RecentRoomsFunc func(ctx context.Context, username string) ([]*domain.RoomActivity, error)

	// In-memory storage for simple tests
	Messages []*domain.Message
}

// NewMockMessageRepository creates a new MockMessageRepository
func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{}
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if message.ID == "" {
		message.ID = nextID("msg")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	stored := *message
	m.Messages = append(m.Messages, &stored)
	return nil
}

func (m *MockMessageRepository) GetByRoom(ctx context.Context, roomID string, limit int) ([]*domain.Message, error) {
	if m.GetByRoomFunc != nil {
		return m.GetByRoomFunc(ctx, roomID, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var messages []*domain.Message
	for _, msg := range m.Messages {
		if msg.RoomID == roomID {
			messages = append(messages, msg)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (m *MockMessageRepository) RecentRooms(ctx context.Context, username string) ([]*domain.RoomActivity, error) {
	if m.RecentRoomsFunc != nil {
		return m.RecentRoomsFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[string]time.Time)
	for _, msg := range m.Messages {
		if msg.Username != username {
			continue
		}
		if ts, ok := latest[msg.RoomID]; !ok || msg.CreatedAt.After(ts) {
			latest[msg.RoomID] = msg.CreatedAt
		}
	}

	rooms := make([]*domain.RoomActivity, 0, len(latest))
	for roomID, ts := range latest {
		rooms = append(rooms, &domain.RoomActivity{RoomID: roomID, LastMessage: ts})
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].LastMessage.After(rooms[j].LastMessage)
	})
	return rooms, nil
}

// StoredInRoom returns the messages persisted for a room, in creation order
func (m *MockMessageRepository) StoredInRoom(roomID string) []*domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var messages []*domain.Message
	for _, msg := range m.Messages {
		if msg.RoomID == roomID {
			messages = append(messages, msg)
		}
	}
	return messages
}

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc           func(ctx context.Context, user *domain.User) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.User, error)
	GetByUsernameFunc    func(ctx context.Context, username string) (*domain.User, error)
	GetByEmailFunc       func(ctx context.Context, email string) (*domain.User, error)
	SearchByUsernameFunc func(ctx context.Context, query, exclude string, limit int) ([]*domain.User, error)

	// In-memory storage
	Users map[string]*domain.User
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.Users {
		if u.Username == user.Username {
			return domain.ErrUsernameExists
		}
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = "user-" + user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) SearchByUsername(ctx context.Context, query, exclude string, limit int) ([]*domain.User, error) {
	if m.SearchByUsernameFunc != nil {
		return m.SearchByUsernameFunc(ctx, query, exclude, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*domain.User
	lowered := strings.ToLower(query)
	for _, user := range m.Users {
		if user.Username == exclude {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), lowered) {
			matches = append(matches, user)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Username < matches[j].Username
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// MockSessionRepository implements domain.SessionRepository for testing
type MockSessionRepository struct {
	mu sync.RWMutex

	// Function overrides
	CreateFunc        func(ctx context.Context, session *domain.Session) error
	GetByTokenFunc    func(ctx context.Context, token string) (*domain.Session, error)
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)

	// In-memory storage
	Sessions map[string]*domain.Session
}

// NewMockSessionRepository creates a new MockSessionRepository with initialized maps
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		Sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = nextID("session")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	m.Sessions[session.Token] = session
	return nil
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.Sessions[token]; ok {
		if session.ExpiresAt.Before(time.Now()) {
			return nil, domain.ErrSessionExpired
		}
		return session, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Sessions, token)
	return nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	now := time.Now()
	for token, session := range m.Sessions {
		if session.ExpiresAt.Before(now) {
			delete(m.Sessions, token)
			count++
		}
	}
	return count, nil
}
