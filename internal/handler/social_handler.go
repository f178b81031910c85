package handler

import (
	"encoding/json"
	"net/http"

	"github.com/tmdavis2/pit-portal/internal/middleware"
	"github.com/tmdavis2/pit-portal/internal/service"

	"github.com/go-chi/chi/v5"
)

// SocialHandler serves the read-side conveniences layered on the message
// store: a user's prior rooms, room history and user search.
type SocialHandler struct {
	chatService *service.ChatService
	authService *service.AuthService
}

func NewSocialHandler(chatService *service.ChatService, authService *service.AuthService) *SocialHandler {
	return &SocialHandler{
		chatService: chatService,
		authService: authService,
	}
}

// RoomsResponse wraps a list of room summaries
type RoomsResponse struct {
	Rooms []*service.RoomSummary `json:"rooms"`
}

// Rooms lists the rooms the requesting user has posted in, most recent
// activity first.
func (h *SocialHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requester(w, r)
	if !ok {
		return
	}

	rooms, err := h.chatService.RecentRooms(r.Context(), user)
	if err != nil {
		http.Error(w, `{"error":"Failed to list rooms"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, RoomsResponse{Rooms: rooms})
}

// RoomMessages returns a room's recent history, oldest first. DM rooms
// are readable only by their participants, the same rule the live join
// path enforces.
func (h *SocialHandler) RoomMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requester(w, r)
	if !ok {
		return
	}

	roomID := service.NormalizeRoomName(chi.URLParam(r, "room_name"))
	if roomID == "" {
		http.Error(w, `{"error":"Room name required"}`, http.StatusBadRequest)
		return
	}

	if !service.CanJoin(roomID, user) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	messages, err := h.chatService.RoomHistory(r.Context(), roomID, 50)
	if err != nil {
		http.Error(w, `{"error":"Failed to load messages"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":      roomID,
		"display_name": service.RoomDisplayName(roomID, user),
		"messages":     messages,
	})
}

// UserSearchResult is one matched user
type UserSearchResult struct {
	Username string `json:"username"`
}

// SearchUsers finds users by username substring. Queries under two
// characters return an empty list; the requester is never included.
func (h *SocialHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requester(w, r)
	if !ok {
		return
	}

	matches, err := h.authService.SearchUsers(r.Context(), r.URL.Query().Get("q"), user)
	if err != nil {
		http.Error(w, `{"error":"Search failed"}`, http.StatusInternalServerError)
		return
	}

	results := make([]UserSearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, UserSearchResult{Username: m.Username})
	}

	writeJSON(w, http.StatusOK, map[string][]UserSearchResult{"users": results})
}

// requester resolves the authenticated principal's username from the
// request context.
func (h *SocialHandler) requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
		return "", false
	}

	user, err := h.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"User not found"}`, http.StatusUnauthorized)
		return "", false
	}

	return user.Username, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
