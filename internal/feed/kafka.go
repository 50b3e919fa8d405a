package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/oggyb/event-network/internal/config"
)

// Encode serializes an event for the wire.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an event and rejects payloads without a message id or kind.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode feed event: %w", err)
	}
	if e.Message.ID == "" || (e.Kind != KindMessageCreated && e.Kind != KindMessageRead) {
		return Event{}, fmt.Errorf("decode feed event: incomplete event %q", b)
	}
	return e, nil
}

// KafkaProducer forwards feed events to a Kafka topic so other instances can
// relay them to their own subscribers.
type KafkaProducer struct {
	producer *kafka.Producer
	topic    string
	origin   string
	log      *slog.Logger
}

func NewKafkaProducer(cfg *config.Config, origin string, log *slog.Logger) (*KafkaProducer, error) {
	cm := producerConfig(cfg)
	p, err := kafka.NewProducer(&cm)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaProducer{
		producer: p,
		topic:    cfg.Kafka.Topic,
		origin:   origin,
		log:      log.With("component", "feed_kafka_producer"),
	}, nil
}

// Publish produces e keyed by the receiver id and waits for the delivery report.
func (p *KafkaProducer) Publish(ctx context.Context, e Event) error {
	e.Origin = p.origin
	payload, err := Encode(e)
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(strconv.FormatUint(e.Message.ReceiverID, 10)),
		Value:          payload,
		Timestamp:      time.Now(),
	}
	if err := p.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("enqueue feed event on %s: %w", p.topic, err)
	}

	select {
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka delivery event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("deliver feed event on %s: %w", p.topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for feed delivery on %s: %w", p.topic, ctx.Err())
	}
}

func (p *KafkaProducer) Close() {
	if left := p.producer.Flush(10_000); left > 0 {
		p.log.Warn("kafka producer closed with undelivered events", "count", left)
	}
	p.producer.Close()
}

// producerConfig bounds delivery by the feed publish timeout so a dead broker
// fails the delivery report instead of holding the caller.
func producerConfig(cfg *config.Config) kafka.ConfigMap {
	cm := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Kafka.Brokers, ","),
		"acks":              "all",
	}
	if cfg.Feed.PublishTimeout > 0 {
		cm["message.timeout.ms"] = int(cfg.Feed.PublishTimeout.Milliseconds())
	}
	if cfg.Kafka.ClientID != "" {
		cm["client.id"] = cfg.Kafka.ClientID
	}
	return cm
}

// consumerConfig gives every instance its own consumer group: each relay
// must see every partition, not a share of them.
func consumerConfig(cfg *config.Config, origin string) kafka.ConfigMap {
	return kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Kafka.Brokers, ","),
		"group.id":           relayGroupID(cfg.Kafka.GroupID, origin),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": "false",
	}
}

func relayGroupID(prefix, origin string) string {
	return prefix + "-" + origin
}

// Relay consumes the feed topic and republishes events produced by other
// instances into the local hub.
type Relay struct {
	cfg    *config.Config
	origin string
	target Publisher
	log    *slog.Logger
}

func NewRelay(cfg *config.Config, origin string, target Publisher, log *slog.Logger) *Relay {
	return &Relay{
		cfg:    cfg,
		origin: origin,
		target: target,
		log:    log.With("component", "feed_kafka_relay"),
	}
}

// Run blocks until ctx is done or the consumer hits a fatal error.
func (r *Relay) Run(ctx context.Context) error {
	cm := consumerConfig(r.cfg, r.origin)
	consumer, err := kafka.NewConsumer(&cm)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			r.log.Warn("closing kafka consumer", "err", err)
		}
	}()

	if err := consumer.SubscribeTopics([]string{r.cfg.Kafka.Topic}, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.cfg.Kafka.Topic, err)
	}
	r.log.Info("feed relay started", "topic", r.cfg.Kafka.Topic, "group_id", cm["group.id"])

	for {
		if ctx.Err() != nil {
			r.log.Info("feed relay stopped")
			return nil
		}

		switch ev := consumer.Poll(500).(type) {
		case nil:
		case *kafka.Message:
			// groups are per process and start at the tail, so offsets
			// are never committed
			if err := r.deliver(ctx, ev.Value); err != nil {
				r.log.Warn("skipping feed event", "offset", ev.TopicPartition.Offset, "err", err)
			}
		case kafka.Error:
			if ev.IsFatal() {
				return fmt.Errorf("kafka consumer: %w", ev)
			}
			r.log.Warn("kafka consumer error", "err", ev, "code", ev.Code())
		}
	}
}

// deliver republishes one payload unless this instance produced it.
func (r *Relay) deliver(ctx context.Context, payload []byte) error {
	e, err := Decode(payload)
	if err != nil {
		return err
	}
	if e.Origin == r.origin {
		return nil
	}
	return r.target.Publish(ctx, e)
}
