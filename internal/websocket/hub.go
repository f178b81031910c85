package websocket

import (
	"context"
	"log/slog"

	"github.com/tmdavis2/pit-portal/internal/observability"
)

// Relay fans a broadcast out across server instances. When configured,
// every payload is published to the relay and delivered locally by the
// relay's consumer on each instance, including the publishing one.
type Relay interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
}

// Hub is the broadcast dispatcher: it owns the room registry and delivers
// payloads to every member of a room. Delivery is best-effort per
// recipient; a failed send to one client never aborts the fan-out.
type Hub struct {
	registry *Registry
	relay    Relay
}

// NewHub creates a Hub over the given registry. relay may be nil, in
// which case broadcasts are delivered in-process only.
func NewHub(registry *Registry, relay Relay) *Hub {
	return &Hub{
		registry: registry,
		relay:    relay,
	}
}

// Registry exposes the hub's room registry
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Register adds a client to its room's member set
func (h *Hub) Register(client *Client) {
	if h.registry.Join(client.roomID, client) {
		observability.WebSocketConnectionsActive.WithLabelValues(client.roomID).Inc()
		slog.Info("client registered",
			slog.String("user", client.username),
			slog.String("room_id", client.roomID))
	}
}

// Unregister removes a client from its room's member set. Safe to call
// repeatedly and safe to call for a client that never registered.
func (h *Hub) Unregister(client *Client) {
	if h.registry.Leave(client.roomID, client) {
		observability.WebSocketConnectionsActive.WithLabelValues(client.roomID).Dec()
		slog.Info("client unregistered",
			slog.String("user", client.username),
			slog.String("room_id", client.roomID))
	}
}

// Broadcast delivers a payload to every current member of a room. With a
// relay configured the payload takes the broker round-trip so that every
// instance, including this one, delivers it locally.
func (h *Hub) Broadcast(ctx context.Context, roomID string, payload []byte) {
	if h.relay != nil {
		if err := h.relay.Publish(ctx, roomID, payload); err == nil {
			return
		} else {
			slog.Error("relay publish failed, delivering locally",
				slog.String("room_id", roomID),
				slog.String("error", err.Error()))
		}
	}
	h.DeliverLocal(roomID, payload)
}

// DeliverLocal pushes a payload to every member of a room registered with
// this instance. A client whose send buffer is full (or that is already
// closing) is dropped from the room; the remaining recipients still
// receive the payload.
func (h *Hub) DeliverLocal(roomID string, payload []byte) {
	for _, client := range h.registry.MembersOf(roomID) {
		if client.enqueue(payload) {
			observability.WebSocketMessagesSent.WithLabelValues(roomID).Inc()
			continue
		}
		observability.WebSocketDeliveriesDropped.WithLabelValues(roomID).Inc()
		slog.Warn("dropping unresponsive client",
			slog.String("user", client.username),
			slog.String("room_id", roomID))
		h.Unregister(client)
		client.Close()
	}
}

// Shutdown closes every registered client connection
func (h *Hub) Shutdown() {
	for _, client := range h.registry.Drain() {
		client.Close()
		slog.Info("closed client connection",
			slog.String("user", client.username),
			slog.String("room_id", client.roomID))
	}
	slog.Info("hub shutdown complete")
}
