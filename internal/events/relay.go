package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	relayMinBackoff = 100 * time.Millisecond
	relayMaxBackoff = 5 * time.Second
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaRelay feeds events read from a topic into a Hub, so every instance's
// admin feed sees orders placed on any instance.
type KafkaRelay struct {
	reader     messageReader
	hub        *Hub[Event]
	log        *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// FeedGroupID is the consumer group of the relay running on instanceID.
func FeedGroupID(instanceID string) string {
	return "storefront-feed-" + instanceID
}

// NewKafkaRelay reads topic as consumer group groupID. Each instance needs
// its own stable group to receive every event. Only events newer than the
// group's first start are delivered.
func NewKafkaRelay(hub *Hub[Event], log *zap.Logger, topic, groupID string, brokers ...string) *KafkaRelay {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return newRelay(reader, hub, log)
}

func newRelay(reader messageReader, hub *Hub[Event], log *zap.Logger) *KafkaRelay {
	return &KafkaRelay{
		reader:     reader,
		hub:        hub,
		log:        log,
		minBackoff: relayMinBackoff,
		maxBackoff: relayMaxBackoff,
	}
}

// Run relays until ctx is done. Read failures back off exponentially up to
// maxBackoff; a successful read resets the delay.
func (r *KafkaRelay) Run(ctx context.Context) {
	var delay time.Duration
	for ctx.Err() == nil {
		if err := r.relayNext(ctx); err == nil {
			delay = 0
			continue
		}

		delay = r.nextBackoff(delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (r *KafkaRelay) nextBackoff(d time.Duration) time.Duration {
	if d < r.minBackoff {
		return r.minBackoff
	}
	return min(2*d, r.maxBackoff)
}

// relayNext returns an error only when reading failed. Malformed events are
// dropped.
func (r *KafkaRelay) relayNext(ctx context.Context) error {
	m, err := r.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Warn("failed to read event", zap.Error(err))
		}
		return err
	}

	var e Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		r.log.Warn("dropping malformed event", zap.String("key", string(m.Key)), zap.Error(err))
		return nil
	}
	r.hub.Publish(e)
	return nil
}

func (r *KafkaRelay) Close() error {
	return r.reader.Close()
}
