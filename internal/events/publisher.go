package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys of the domain events this service emits.
const (
	FriendshipRequested = "friendship.requested"
	FriendshipAccepted  = "friendship.accepted"
	FriendshipRejected  = "friendship.rejected"
	FriendshipRemoved   = "friendship.removed"
	MatchRecomputed     = "match.recomputed"
	PostCreated         = "post.created"
	PostLiked           = "post.liked"
	PostUnliked         = "post.unliked"
	CommentAdded        = "comment.added"
	CommentDeleted      = "comment.deleted"
	MessageSent         = "message.sent"
)

const serviceName = "event-network"

// Envelope wraps every published event.
type Envelope struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Service    string `json:"service"`
	UserID     uint64 `json:"user_id,omitempty"`
	Payload    any    `json:"payload"`
}

// NewEnvelope stamps payload with a fresh id and the current time.
func NewEnvelope(eventType string, userID uint64, payload any) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Service:    serviceName,
		UserID:     userID,
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event Envelope) error
	Close() error
}

type rabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// NewRabbitPublisher dials RabbitMQ and declares a durable topic exchange.
func NewRabbitPublisher(amqpURL, exchange string) (Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &rabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *rabbitPublisher) Publish(ctx context.Context, routingKey string, event Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return amqp.ErrClosed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

type noopPublisher struct {
	log *slog.Logger
}

// NewNoopPublisher returns a publisher that drops events; used when RabbitMQ is not configured.
func NewNoopPublisher(log *slog.Logger) Publisher { return &noopPublisher{log: log} }

func (n *noopPublisher) Publish(ctx context.Context, routingKey string, event Envelope) error {
	n.log.Debug("event publishing disabled; dropping event", "routing_key", routingKey, "event_id", event.EventID)
	return nil
}

func (n *noopPublisher) Close() error { return nil }

// Emit publishes a domain event after the write it describes has committed.
// Failures are logged and swallowed: the write already happened.
func Emit(ctx context.Context, p Publisher, log *slog.Logger, routingKey string, userID uint64, payload any) {
	if p == nil {
		return
	}
	env := NewEnvelope(routingKey, userID, payload)
	if err := p.Publish(context.WithoutCancel(ctx), routingKey, env); err != nil {
		log.Warn("failed to publish event", "routing_key", routingKey, "event_id", env.EventID, "err", err)
	}
}
