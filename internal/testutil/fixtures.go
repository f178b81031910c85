package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tmdavis2/pit-portal/internal/domain"
)

var idCounter int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	id := atomic.AddInt64(&idCounter, 1)
	return fmt.Sprintf("%s-%d", prefix, id)
}

// UserOptions configures a test user fixture
type UserOptions struct {
	ID       string
	Username string
	Email    string
	Password string
}

// NewTestUser creates a user fixture with sensible defaults.
// The password is hashed with a low bcrypt cost to keep tests fast.
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	n := atomic.AddInt64(&idCounter, 1)
	options := &UserOptions{
		ID:       fmt.Sprintf("user-%d", n),
		Username: fmt.Sprintf("testuser%d", n),
		Email:    fmt.Sprintf("test%d@example.com", n),
		Password: "password123",
	}
	for _, opt := range opts {
		opt(options)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(options.Password), bcrypt.MinCost)
	return &domain.User{
		ID:           options.ID,
		Username:     options.Username,
		Email:        options.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
}

// WithUsername sets the username for a test user
func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

// WithEmail sets the email for a test user
func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Email = email
	}
}

// WithPassword sets the plaintext password for a test user
func WithPassword(password string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Password = password
	}
}

// NewTestMessage creates a message fixture for the given room and sender
func NewTestMessage(roomID, username, content string) *domain.Message {
	return &domain.Message{
		ID:        nextID("msg"),
		RoomID:    roomID,
		Username:  username,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewTestSession creates a session fixture valid for one hour
func NewTestSession(userID string) *domain.Session {
	return &domain.Session{
		ID:        nextID("session"),
		UserID:    userID,
		Token:     nextID("token"),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// NewExpiredSession creates a session fixture that expired an hour ago
func NewExpiredSession(userID string) *domain.Session {
	return &domain.Session{
		ID:        nextID("session"),
		UserID:    userID,
		Token:     nextID("token"),
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
}
