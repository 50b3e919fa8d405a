package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/event-network/internal/config"
	"github.com/oggyb/event-network/internal/db"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func msgEvent(id string, from, to uint64) Event {
	return Event{
		Kind: KindMessageCreated,
		Message: db.Message{
			ID:         id,
			SenderID:   from,
			ReceiverID: to,
			Content:    "hi",
			CreatedAt:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func TestHub_DeliversToBothParties(t *testing.T) {
	h := NewHub(4, discard())
	alice := h.Subscribe(1)
	bob := h.Subscribe(2)
	carol := h.Subscribe(3)
	defer alice.Cancel()
	defer bob.Cancel()
	defer carol.Cancel()

	require.NoError(t, h.Publish(context.Background(), msgEvent("m1", 1, 2)))

	assert.Equal(t, "m1", (<-alice.Events()).Message.ID)
	assert.Equal(t, "m1", (<-bob.Events()).Message.ID)
	assert.Empty(t, carol.Events())
}

func TestHub_OverflowDropsAndSignalsResync(t *testing.T) {
	h := NewHub(2, discard())
	s := h.Subscribe(2)
	defer s.Cancel()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, h.Publish(context.Background(), msgEvent(id, 1, 2)))
	}

	assert.Len(t, s.Events(), 2)
	select {
	case <-s.Resync():
	default:
		t.Fatal("expected a resync signal after overflow")
	}
	// a single pending signal regardless of how many events were dropped
	assert.Empty(t, s.Resync())

	assert.Equal(t, "a", (<-s.Events()).Message.ID)
	assert.Equal(t, "b", (<-s.Events()).Message.ID)
}

func TestSubscription_Cancel(t *testing.T) {
	h := NewHub(1, discard())
	s := h.Subscribe(7)
	other := h.Subscribe(7)
	assert.Equal(t, 2, h.Subscribers(7))

	s.Cancel()
	s.Cancel()
	assert.Equal(t, 1, h.Subscribers(7))

	_, open := <-s.Events()
	assert.False(t, open)

	require.NoError(t, h.Publish(context.Background(), msgEvent("x", 7, 8)))
	assert.Len(t, other.Events(), 1)

	other.Cancel()
	assert.Zero(t, h.Subscribers(7))
}

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestFanout_PublishesToAllAndJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("broker down")}

	err := Fanout{ok, nil, bad}.Publish(context.Background(), msgEvent("m", 1, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
}

func TestRelay_Deliver(t *testing.T) {
	target := &recorder{}
	r := NewRelay(nil, "node-a", target, discard())

	foreign := msgEvent("m1", 1, 2)
	foreign.Origin = "node-b"
	payload, err := Encode(foreign)
	require.NoError(t, err)
	require.NoError(t, r.deliver(context.Background(), payload))

	own := msgEvent("m2", 1, 2)
	own.Origin = "node-a"
	payload, err = Encode(own)
	require.NoError(t, err)
	require.NoError(t, r.deliver(context.Background(), payload))

	require.Len(t, target.got, 1)
	assert.Equal(t, "m1", target.got[0].Message.ID)
	assert.Equal(t, uint64(2), target.got[0].Message.ReceiverID)
	assert.True(t, foreign.Message.CreatedAt.Equal(target.got[0].Message.CreatedAt))

	assert.Error(t, r.deliver(context.Background(), []byte(`{"kind":"message.created"}`)))
	assert.Error(t, r.deliver(context.Background(), []byte(`not json`)))
	assert.Len(t, target.got, 1)
}

func TestKafkaConfig(t *testing.T) {
	cfg := config.New()
	cfg.Kafka.Brokers = []string{"k1:9092", "k2:9092"}
	cfg.Feed.PublishTimeout = 3 * time.Second

	p := producerConfig(cfg)
	assert.Equal(t, "k1:9092,k2:9092", p["bootstrap.servers"])
	assert.Equal(t, 3000, p["message.timeout.ms"])
	assert.Equal(t, "all", p["acks"])

	// every instance reads the whole topic
	a := consumerConfig(cfg, "instance-a")
	b := consumerConfig(cfg, "instance-b")
	assert.NotEqual(t, a["group.id"], b["group.id"])
	assert.Equal(t, cfg.Kafka.GroupID+"-instance-a", a["group.id"])
	assert.Equal(t, "latest", a["auto.offset.reset"])
}
