package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/event-network/internal/db"
	"github.com/oggyb/event-network/internal/feed"
)

const resyncRetry = time.Second

// Session is one client's live view of its conversation list.
//
// Feed events are applied by a single patch loop. When the feed drops an
// event for this session the loop rebuilds from the store.
type Session struct {
	svc  *Service
	user uint64
	sub  *feed.Subscription
	log  *slog.Logger

	mu  sync.Mutex
	agg *Aggregator

	updates chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func newSession(ctx context.Context, svc *Service, userID uint64, sub *feed.Subscription, agg *Aggregator) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		svc:     svc,
		user:    userID,
		sub:     sub,
		log:     svc.log.With("user_id", userID),
		agg:     agg,
		updates: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.loop(ctx)
	return s
}

// Updates receives a value whenever the list changed since the last receive.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// Done is closed once the patch loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Conversations returns the current list, most recent first.
func (s *Session) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Snapshot()
}

// Send sends a message and shows it in the list without waiting for the
// feed echo.
func (s *Session) Send(ctx context.Context, receiverID uint64, content string) (db.Message, error) {
	m, err := s.svc.SendMessage(ctx, s.user, receiverID, content)
	if err != nil {
		return db.Message{}, err
	}
	s.patch(func(a *Aggregator) bool { return a.ApplyMessage(m) })
	return m, nil
}

// MarkRead marks the messages of senderID read and clears their unread count.
func (s *Session) MarkRead(ctx context.Context, senderID uint64) error {
	flipped, err := s.svc.MarkRead(ctx, s.user, senderID)
	if err != nil {
		return err
	}
	s.patch(func(a *Aggregator) bool {
		changed := false
		for _, m := range flipped {
			changed = a.ApplyRead(m) || changed
		}
		return changed
	})
	return nil
}

// Close stops the session and waits for the patch loop to exit.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.sub.Cancel()
	})
	<-s.done
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	defer s.sub.Cancel()

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-s.sub.Events():
			if !ok {
				return
			}
			s.apply(e)

		case <-s.sub.Resync():
			retry = s.resync(ctx)

		case <-retry:
			retry = s.resync(ctx)
		}
	}
}

func (s *Session) apply(e feed.Event) {
	s.patch(func(a *Aggregator) bool {
		switch e.Kind {
		case feed.KindMessageCreated:
			return a.ApplyMessage(e.Message)
		case feed.KindMessageRead:
			return a.ApplyRead(e.Message)
		}
		return false
	})
}

// resync rebuilds from the store. On failure it returns a timer for the
// next attempt.
func (s *Session) resync(ctx context.Context) <-chan time.Time {
	agg, err := s.svc.load(ctx, s.user)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("conversation resync failed", "err", err)
		}
		return time.After(resyncRetry)
	}

	s.log.Debug("conversation list resynced")
	s.patch(func(a *Aggregator) bool {
		*a = *agg
		return true
	})
	return nil
}

func (s *Session) patch(fn func(*Aggregator) bool) {
	s.mu.Lock()
	changed := fn(s.agg)
	s.mu.Unlock()

	if changed {
		select {
		case s.updates <- struct{}{}:
		default:
		}
	}
}
