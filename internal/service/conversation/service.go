// Package conversation turns a user's direct messages into a per-counterpart
// conversation list with unread counts, and keeps live sessions of that list
// current from the message feed.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/event-network/internal/db"
	svcErr "github.com/oggyb/event-network/internal/errors"
	"github.com/oggyb/event-network/internal/events"
	"github.com/oggyb/event-network/internal/feed"
	"github.com/oggyb/event-network/internal/metrics"
	"github.com/oggyb/event-network/internal/repository"
)

type Service struct {
	messages  *repository.MessageRepository
	hub       *feed.Hub
	out       feed.Publisher
	publisher events.Publisher
	log       *slog.Logger

	publishTimeout time.Duration
	now            func() time.Time
}

// DefaultPublishTimeout bounds feed fan-out when none is configured.
const DefaultPublishTimeout = 5 * time.Second

// NewService wires the conversation service. Message events go to hub and,
// when set, to relay (for other instances). publisher may be nil.
func NewService(gdb *gorm.DB, hub *feed.Hub, relay feed.Publisher, publisher events.Publisher, log *slog.Logger) *Service {
	var out feed.Fanout
	if hub != nil {
		out = append(out, hub)
	}
	if relay != nil {
		out = append(out, relay)
	}
	return &Service{
		messages:  repository.NewMessageRepository(gdb),
		hub:       hub,
		out:       out,
		publisher: publisher,
		log:       log.With("component", "conversation"),

		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
}

// WithPublishTimeout bounds how long SendMessage and MarkRead wait on feed
// delivery after the write committed. Non-positive values are ignored.
func (s *Service) WithPublishTimeout(d time.Duration) *Service {
	if d > 0 {
		s.publishTimeout = d
	}
	return s
}

// FetchConversations rebuilds userID's conversation list from the store.
func (s *Service) FetchConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	const op = "conversation.fetch"
	if userID == 0 {
		return nil, svcErr.Invalid(op, "user id must be set")
	}

	agg, err := s.load(ctx, userID)
	if err != nil {
		return nil, svcErr.FromStore(op, err)
	}
	return agg.Snapshot(), nil
}

func (s *Service) load(ctx context.Context, userID uint64) (*Aggregator, error) {
	msgs, err := s.messages.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Build(userID, msgs), nil
}

// SendMessage stores one message and publishes it on the feed.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID uint64, content string) (m db.Message, err error) {
	const op = "conversation.send"
	defer func() { metrics.IncMessageSent(metrics.Status(err)) }()

	if senderID == 0 || receiverID == 0 {
		return m, svcErr.Invalid(op, "sender and receiver must be set")
	}
	if senderID == receiverID {
		return m, svcErr.Invalid(op, "cannot message yourself")
	}
	if strings.TrimSpace(content) == "" {
		return m, svcErr.Invalid(op, "content must not be empty")
	}

	m = db.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.messages.Create(ctx, &m); err != nil {
		return db.Message{}, svcErr.FromStore(op, err)
	}

	s.publish(ctx, feed.Event{Kind: feed.KindMessageCreated, Message: m})
	events.Emit(ctx, s.publisher, s.log, events.MessageSent, senderID, map[string]any{
		"message_id":  m.ID,
		"sender_id":   senderID,
		"receiver_id": receiverID,
	})
	return m, nil
}

// MarkRead flips every unread message senderID sent to userID and returns
// the flipped messages. Messages from other senders are untouched.
func (s *Service) MarkRead(ctx context.Context, userID, senderID uint64) ([]db.Message, error) {
	const op = "conversation.mark_read"
	if userID == 0 || senderID == 0 {
		return nil, svcErr.Invalid(op, "user and sender must be set")
	}

	flipped, err := s.messages.MarkRead(ctx, userID, senderID)
	if err != nil {
		return nil, svcErr.FromStore(op, err)
	}
	for _, m := range flipped {
		s.publish(ctx, feed.Event{Kind: feed.KindMessageRead, Message: m})
	}
	s.log.Debug("messages marked read", "user_id", userID, "sender_id", senderID, "count", len(flipped))
	return flipped, nil
}

// publish runs after the write committed; delivery failures only cost
// subscribers a resync.
func (s *Service) publish(ctx context.Context, e feed.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.out.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish feed event", "kind", e.Kind, "message_id", e.Message.ID, "err", err)
	}
}

// Open starts a live session on userID's conversation list. The session
// lives until Close or until ctx is done.
func (s *Service) Open(ctx context.Context, userID uint64) (*Session, error) {
	const op = "conversation.open"
	if userID == 0 {
		return nil, svcErr.Invalid(op, "user id must be set")
	}
	if s.hub == nil {
		return nil, fmt.Errorf("%s: no feed hub configured", op)
	}

	// subscribe before loading so nothing written in between is missed
	sub := s.hub.Subscribe(userID)
	agg, err := s.load(ctx, userID)
	if err != nil {
		sub.Cancel()
		return nil, svcErr.FromStore(op, err)
	}

	return newSession(ctx, s, userID, sub, agg), nil
}
