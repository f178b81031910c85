package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tmdavis2/pit-portal/internal/service"
	"github.com/tmdavis2/pit-portal/internal/testutil"
	ws "github.com/tmdavis2/pit-portal/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsTestEnv struct {
	server      *httptest.Server
	hub         *ws.Hub
	userRepo    *testutil.MockUserRepository
	sessionRepo *testutil.MockSessionRepository
	msgRepo     *testutil.MockMessageRepository
}

func newWSTestEnv(t *testing.T) *wsTestEnv {
	t.Helper()

	userRepo := testutil.NewMockUserRepository()
	sessionRepo := testutil.NewMockSessionRepository()
	msgRepo := testutil.NewMockMessageRepository()

	authService := service.NewAuthService(userRepo, sessionRepo)
	chatService := service.NewChatService(msgRepo)
	hub := ws.NewHub(ws.NewRegistry(), nil)

	handler := NewWebSocketHandler(hub, chatService, authService, "*")

	router := chi.NewRouter()
	router.Get("/ws/chat/{room_name}", handler.HandleConnection)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Shutdown)

	return &wsTestEnv{
		server:      server,
		hub:         hub,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		msgRepo:     msgRepo,
	}
}

// addUser seeds a user with a valid session and returns the token
func (e *wsTestEnv) addUser(username string) string {
	user := testutil.NewTestUser(testutil.WithUsername(username))
	e.userRepo.Users[user.ID] = user

	session := testutil.NewTestSession(user.ID)
	e.sessionRepo.Sessions[session.Token] = session
	return session.Token
}

func (e *wsTestEnv) wsURL(room, token string) string {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/chat/" + room
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func TestWebSocketHandler_RejectsUnauthenticated(t *testing.T) {
	env := newWSTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("general", ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandler_RejectsInvalidToken(t *testing.T) {
	env := newWSTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("general", "not-a-session"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandler_RejectsExpiredSession(t *testing.T) {
	env := newWSTestEnv(t)

	user := testutil.NewTestUser(testutil.WithUsername("alice"))
	env.userRepo.Users[user.ID] = user
	expired := testutil.NewExpiredSession(user.ID)
	env.sessionRepo.Sessions[expired.Token] = expired

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("general", expired.Token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandler_RejectsDMOutsider(t *testing.T) {
	env := newWSTestEnv(t)
	token := env.addUser("mallory")

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("dm_alice_bob", token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketHandler_RefusalsAreIndistinguishable(t *testing.T) {
	env := newWSTestEnv(t)
	token := env.addUser("mallory")

	read := func(url string) (int, string) {
		resp, err := http.Get(strings.Replace(url, "ws", "http", 1))
		require.NoError(t, err)
		defer resp.Body.Close()

		var body strings.Builder
		buf := make([]byte, 512)
		for {
			n, err := resp.Body.Read(buf)
			body.Write(buf[:n])
			if err != nil {
				break
			}
		}
		return resp.StatusCode, body.String()
	}

	// An anonymous request and a forbidden DM join must produce the same
	// observable refusal.
	anonStatus, anonBody := read(env.wsURL("dm_alice_bob", ""))
	authStatus, authBody := read(env.wsURL("dm_alice_bob", token))

	assert.Equal(t, http.StatusForbidden, anonStatus)
	assert.Equal(t, anonStatus, authStatus)
	assert.Equal(t, anonBody, authBody)
}

func TestWebSocketHandler_RejectsBlankRoomName(t *testing.T) {
	env := newWSTestEnv(t)
	token := env.addUser("alice")

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("%20%20", token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketHandler_AcceptsPublicRoomJoin(t *testing.T) {
	env := newWSTestEnv(t)
	token := env.addUser("alice")

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL("general", token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "hello", "username": "alice"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var out struct {
		Message   string `json:"message"`
		Username  string `json:"username"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "hello", out.Message)
	assert.Equal(t, "alice", out.Username)
	assert.NotEmpty(t, out.Timestamp)

	// The message was persisted before delivery.
	assert.Len(t, env.msgRepo.StoredInRoom("general"), 1)
}

func TestWebSocketHandler_AcceptsDMParticipant(t *testing.T) {
	env := newWSTestEnv(t)
	aliceToken := env.addUser("alice")
	bobToken := env.addUser("bob")

	aliceConn, _, err := websocket.DefaultDialer.Dial(env.wsURL("dm_alice_bob", aliceToken), nil)
	require.NoError(t, err)
	defer aliceConn.Close()

	bobConn, _, err := websocket.DefaultDialer.Dial(env.wsURL("dm_alice_bob", bobToken), nil)
	require.NoError(t, err)
	defer bobConn.Close()

	require.NoError(t, aliceConn.WriteJSON(map[string]string{"message": "psst", "username": "alice"}))

	require.NoError(t, bobConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := bobConn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "psst")
}

func TestWebSocketHandler_NormalizesRoomName(t *testing.T) {
	env := newWSTestEnv(t)
	token := env.addUser("alice")

	// "rocket league" and "rocket_league" are the same room.
	conn1, _, err := websocket.DefaultDialer.Dial(env.wsURL("rocket%20league", token), nil)
	require.NoError(t, err)
	defer conn1.Close()

	token2 := env.addUser("bob")
	conn2, _, err := websocket.DefaultDialer.Dial(env.wsURL("rocket_league", token2), nil)
	require.NoError(t, err)
	defer conn2.Close()

	require.NoError(t, conn1.WriteJSON(map[string]string{"message": "same room", "username": "alice"}))

	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn2.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "same room")
}

func TestWebSocketHandler_CookieAuthentication(t *testing.T) {
	env := newWSTestEnv(t)
	token := env.addUser("alice")

	header := http.Header{}
	header.Set("Cookie", "session_id="+token)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL("general", ""), header)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocketHandler_OriginAllowlist(t *testing.T) {
	userRepo := testutil.NewMockUserRepository()
	sessionRepo := testutil.NewMockSessionRepository()
	authService := service.NewAuthService(userRepo, sessionRepo)
	chatService := service.NewChatService(testutil.NewMockMessageRepository())
	hub := ws.NewHub(ws.NewRegistry(), nil)

	handler := NewWebSocketHandler(hub, chatService, authService, "http://allowed.example")

	router := chi.NewRouter()
	router.Get("/ws/chat/{room_name}", handler.HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Shutdown)

	user := testutil.NewTestUser(testutil.WithUsername("alice"))
	userRepo.Users[user.ID] = user
	session := testutil.NewTestSession(user.ID)
	sessionRepo.Sessions[session.Token] = session

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat/general?token=" + session.Token

	t.Run("allowed_origin", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://allowed.example")
		conn, _, err := websocket.DefaultDialer.Dial(url, header)
		require.NoError(t, err)
		conn.Close()
	})

	t.Run("disallowed_origin", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://evil.example")
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
