package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const broadcastExchange = "chat.broadcast"

// Relay bridges room broadcasts across server instances through a fanout
// exchange. Every instance publishes its broadcasts to the exchange and
// consumes the full stream back, delivering each payload to its own local
// registry.
type Relay struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

type broadcastEnvelope struct {
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func NewRelay(url string) (*Relay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	relay := &Relay{
		conn:    conn,
		channel: ch,
	}

	if err := relay.setup(); err != nil {
		relay.Close()
		return nil, err
	}

	return relay, nil
}

// NewRelayWithRetry dials RabbitMQ until it succeeds or ctx expires.
// Useful at startup when the broker may still be coming up.
func NewRelayWithRetry(ctx context.Context, url string) (*Relay, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		relay, err := NewRelay(url)
		if err == nil {
			return relay, nil
		}
		lastErr = err
		slog.Warn("rabbitmq not ready, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ: %w", lastErr)
		case <-time.After(3 * time.Second):
		}
	}
}

func (r *Relay) setup() error {
	if err := r.channel.ExchangeDeclare(
		broadcastExchange, // name
		"fanout",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		return fmt.Errorf("failed to declare broadcast exchange: %w", err)
	}

	slog.Info("relay setup completed", slog.String("exchange", broadcastExchange))
	return nil
}

// Publish sends a room broadcast to the fanout exchange
func (r *Relay) Publish(ctx context.Context, roomID string, payload []byte) error {
	envelope := broadcastEnvelope{
		RoomID:    roomID,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast envelope: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		broadcastExchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}
	return nil
}

// Start binds a per-instance queue to the broadcast exchange and feeds
// every consumed payload to deliver. Returns once the consumer goroutine
// is running; the goroutine stops when ctx is canceled.
func (r *Relay) Start(ctx context.Context, deliver func(roomID string, payload []byte)) error {
	queue, err := r.channel.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare relay queue: %w", err)
	}

	if err := r.channel.QueueBind(
		queue.Name,
		"",
		broadcastExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind relay queue: %w", err)
	}

	msgs, err := r.channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register relay consumer: %w", err)
	}

	slog.Info("relay consuming broadcasts",
		slog.String("queue", queue.Name),
		slog.String("exchange", broadcastExchange))

	go func() {
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping broadcast relay consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("relay consumer channel closed")
					return
				}

				var envelope broadcastEnvelope
				if err := json.Unmarshal(msg.Body, &envelope); err != nil {
					slog.Error("error unmarshaling broadcast envelope",
						slog.String("error", err.Error()))
					continue
				}

				deliver(envelope.RoomID, envelope.Payload)
			}
		}
	}()

	return nil
}

func (r *Relay) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *Relay) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
