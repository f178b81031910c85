//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestClient wraps an http.Client with a cookie jar so session cookies
// survive across requests, the way a browser client would behave.
type TestClient struct {
	t      *testing.T
	http   *http.Client
	token  string
	userID string
}

func newTestClient(t *testing.T) *TestClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &TestClient{
		t: t,
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

func (c *TestClient) postJSON(path string, body any) *http.Response {
	c.t.Helper()

	data, err := json.Marshal(body)
	require.NoError(c.t, err)

	resp, err := c.http.Post(baseURL+path, "application/json", bytes.NewReader(data))
	require.NoError(c.t, err)
	return resp
}

func (c *TestClient) get(path string) *http.Response {
	c.t.Helper()

	resp, err := c.http.Get(baseURL + path)
	require.NoError(c.t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// register creates an account and logs it in, capturing the session token
// from the session_id cookie for WebSocket dials.
func (c *TestClient) register(username, email, password string) userResponse {
	c.t.Helper()

	resp := c.postJSON("/api/v1/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, "register %s", username)
	user := decodeJSON[userResponse](c.t, resp)

	c.login(username, password)
	c.userID = user.ID
	return user
}

func (c *TestClient) login(username, password string) loginResponse {
	c.t.Helper()

	resp := c.postJSON("/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(c.t, http.StatusOK, resp.StatusCode, "login %s", username)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session_id" {
			c.token = cookie.Value
		}
	}
	require.NotEmpty(c.t, c.token, "login did not set a session cookie")

	return decodeJSON[loginResponse](c.t, resp)
}

func (c *TestClient) logout() {
	c.t.Helper()

	resp := c.postJSON("/api/v1/auth/logout", nil)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	c.token = ""
}

// connectChat opens an authenticated WebSocket to the given room. The
// connection is closed automatically when the test finishes.
func (c *TestClient) connectChat(room string) *websocket.Conn {
	c.t.Helper()

	url := fmt.Sprintf("%s/ws/chat/%s?token=%s", wsBaseURL, room, c.token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.NoError(c.t, err, "websocket dial to room %s", room)

	c.t.Cleanup(func() { conn.Close() })
	return conn
}

// tryConnectChat dials without failing the test, returning the HTTP status
// of the refused handshake.
func (c *TestClient) tryConnectChat(room string) (*websocket.Conn, int) {
	c.t.Helper()

	url := fmt.Sprintf("%s/ws/chat/%s?token=%s", wsBaseURL, room, c.token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			resp.Body.Close()
			status = resp.StatusCode
		}
		return nil, status
	}
	c.t.Cleanup(func() { conn.Close() })
	return conn, resp.StatusCode
}

type chatPayload struct {
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp,omitempty"`
}

func sendChat(t *testing.T, conn *websocket.Conn, username, message string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(chatPayload{Message: message, Username: username}))
}

func recvChat(t *testing.T, conn *websocket.Conn) chatPayload {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var payload chatPayload
	require.NoError(t, conn.ReadJSON(&payload))
	return payload
}

// uniqueName avoids collisions between tests sharing one database.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1_000_000_000)
}
