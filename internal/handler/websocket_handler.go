package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tmdavis2/pit-portal/internal/middleware"
	"github.com/tmdavis2/pit-portal/internal/service"
	ws "github.com/tmdavis2/pit-portal/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *ws.Hub
	chatService *service.ChatService
	authService *service.AuthService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins is
// the comma-separated origin allowlist; requests without an Origin header
// (non-browser clients) are accepted.
func NewWebSocketHandler(hub *ws.Hub, chatService *service.ChatService, authService *service.AuthService, allowedOrigins string) *WebSocketHandler {
	origins := make(map[string]bool)
	wildcard := false
	for _, o := range middleware.ParseOrigins(allowedOrigins) {
		if o == "*" {
			wildcard = true
		}
		origins[o] = true
	}

	return &WebSocketHandler{
		hub:         hub,
		chatService: chatService,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || wildcard || origins[origin]
			},
		},
	}
}

// HandleConnection runs the join sequence for one connection: resolve the
// principal, normalize the room name, check the room access policy,
// register with the hub, then accept the upgrade. An unauthenticated
// request and a forbidden DM join are refused identically, with no body
// hinting at the reason.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := service.NormalizeRoomName(chi.URLParam(r, "room_name"))
	if roomID == "" {
		http.Error(w, `{"error":"Room name required"}`, http.StatusBadRequest)
		return
	}

	userID, username, authenticated := h.principal(r)

	// The session outlives this handler; its lifetime is bounded by the
	// connection itself and hub shutdown, not by the HTTP request.
	client := ws.NewClient(context.Background(), h.hub, userID, username, roomID, h.chatService)
	if err := client.Authorize(); err != nil {
		client.Close()
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if !authenticated || !service.CanJoin(roomID, username) {
		client.Close()
		slog.Info("websocket join refused",
			slog.Bool("authenticated", authenticated),
			slog.String("room_id", roomID))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	// Register before accepting so a fully-open connection can never sit
	// outside the room's member set.
	if err := client.Join(); err != nil {
		client.Close()
		w.WriteHeader(http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		client.Close()
		slog.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("room_id", roomID))
		return
	}

	client.Start(conn)
}

// principal resolves the connection's authenticated identity from the
// session cookie or, for clients that cannot send cookies, a token query
// parameter.
func (h *WebSocketHandler) principal(r *http.Request) (userID, username string, ok bool) {
	token := ""
	if cookie, err := r.Cookie("session_id"); err == nil {
		token = cookie.Value
	}
	if qt := r.URL.Query().Get("token"); qt != "" {
		token = qt
	}
	if token == "" {
		return "", "", false
	}

	session, err := h.authService.ValidateSession(r.Context(), token)
	if err != nil {
		return "", "", false
	}

	user, err := h.authService.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		return "", "", false
	}

	return user.ID, user.Username, true
}
