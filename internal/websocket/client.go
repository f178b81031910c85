package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmdavis2/pit-portal/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 4096
	persistTimeout = 5 * time.Second
)

// State is a connection session's lifecycle position. Sessions move
// strictly forward: Connecting -> Authorizing -> Joined -> Closed, with
// Closed terminal and reachable from every state.
type State int32

const (
	StateConnecting State = iota
	StateAuthorizing
	StateJoined
	StateClosed
)

var ErrBadTransition = errors.New("invalid session state transition")

// MessageStore persists chat messages. Persistence strictly gates
// broadcast: a payload is never fanned out unless its store call
// returned successfully.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *domain.Message) error
}

// Client is one connection session: the server-side state machine for a
// single WebSocket connection, joined to exactly one room for its life.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string
	roomID   string
	store    MessageStore

	state     atomic.Int32
	writeMu   sync.Mutex
	connOpen  atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// InboundPayload is what a connected client sends: the message body plus
// a display username. The username is advisory; access control always
// uses the principal captured at join time.
type InboundPayload struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// OutboundPayload is broadcast to every member of a room
type OutboundPayload struct {
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// NewClient creates a session in the Connecting state. The transport
// connection is attached later with Start, after the session has been
// authorized and registered.
func NewClient(ctx context.Context, hub *Hub, userID, username, roomID string, store MessageStore) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		hub:       hub,
		send:      make(chan []byte, 256),
		userID:    userID,
		username:  username,
		roomID:    roomID,
		store:     store,
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

// State returns the session's current lifecycle state
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Authorize moves the session from Connecting to Authorizing
func (c *Client) Authorize() error {
	if !c.transition(StateConnecting, StateAuthorizing) {
		return ErrBadTransition
	}
	return nil
}

// Join registers the session with the hub's room registry and moves it to
// Joined. Registration completes before the transport connection is
// accepted, so a fully-open connection can never miss a broadcast.
func (c *Client) Join() error {
	if !c.transition(StateAuthorizing, StateJoined) {
		return ErrBadTransition
	}
	c.hub.Register(c)
	return nil
}

// Start attaches the accepted transport connection and launches the read
// and write pumps. Must only be called on a Joined session.
func (c *Client) Start(conn *websocket.Conn) {
	c.conn = conn
	c.connOpen.Store(true)

	go c.writePump()
	go c.readPump()
}

// Close tears the session down: terminal state, deregistration, context
// cancellation and transport close. Unconditional and idempotent; safe to
// call from any state, including before registration ever happened.
func (c *Client) Close() {
	c.state.Store(int32(StateClosed))
	c.ctxCancel()
	c.hub.Unregister(c)
	c.closeConnection()
}

// enqueue hands a payload to the session's write pump without blocking.
// Returns false when the session is closed or its buffer is full; the
// caller treats that as a per-recipient delivery failure.
func (c *Client) enqueue(payload []byte) bool {
	if c.State() == StateClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump processes inbound payloads one at a time: parse, persist,
// broadcast. A session never pipelines its own messages, so per-connection
// order is preserved.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("user", c.username),
			slog.String("room_id", c.roomID))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("user", c.username))
			}
			return
		}

		c.handlePayload(raw)
	}
}

// handlePayload runs one inbound message through the parse, persist,
// broadcast sequence. Failures are contained to this one payload: the
// connection stays open and nothing is echoed back to the sender.
func (c *Client) handlePayload(raw []byte) {
	var in InboundPayload
	if err := json.Unmarshal(raw, &in); err != nil {
		slog.Warn("malformed payload dropped",
			slog.String("error", err.Error()),
			slog.String("user", c.username),
			slog.String("room_id", c.roomID))
		return
	}

	msg := &domain.Message{
		RoomID:   c.roomID,
		Username: in.Username,
		Content:  in.Message,
	}

	ctx, cancel := context.WithTimeout(c.ctx, persistTimeout)
	err := c.store.SaveMessage(ctx, msg)
	cancel()
	if err != nil {
		// Not broadcast: delivery is strictly gated on persistence.
		// The connection itself stays up.
		slog.Error("failed to persist message",
			slog.String("error", err.Error()),
			slog.String("user", c.username),
			slog.String("room_id", c.roomID))
		return
	}

	out := OutboundPayload{
		Message:   msg.Content,
		Username:  msg.Username,
		Timestamp: msg.CreatedAt.Format(time.RFC3339),
	}
	payload, err := json.Marshal(out)
	if err != nil {
		slog.Error("failed to marshal outbound payload",
			slog.String("error", err.Error()),
			slog.String("room_id", c.roomID))
		return
	}

	c.hub.Broadcast(c.ctx, c.roomID, payload)
}

// writePump relays broadcast payloads to the transport connection and
// keeps it alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.writeMessage(websocket.CloseMessage, []byte{})
			return

		case payload := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.connOpen.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if c.connOpen.CompareAndSwap(true, false) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}
