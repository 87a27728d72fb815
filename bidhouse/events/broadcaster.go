package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/bidhouse/server/bidhouse"
	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const eventVersion = 1

var _ auction.ActivitySink = (*Broadcaster)(nil)

var errClosed = errors.New("broadcaster closed")

// Broadcaster publishes every engine activity to a Kafka topic so other
// services can follow bids and settlements. Record only enqueues; delivery
// results are logged from a background goroutine.
type Broadcaster struct {
	producer sarama.AsyncProducer
	topic    string

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	failed atomic.Int64
}

type Event struct {
	V         int                 `json:"v"`
	ID        string              `json:"id"`
	Type      models.ActivityKind `json:"type"`
	UserID    int64               `json:"user_id"`
	ListingID *int64              `json:"listing_id,omitempty"`
	Amount    *decimal.Decimal    `json:"amount,omitempty"`
	Message   string              `json:"message"`
	At        time.Time           `json:"at"`
}

func New(cfg bidhouse.KafkaConfig) (*Broadcaster, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}

	sc.Producer.Return.Errors = true
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewWithProducer(producer, cfg.Topic), nil
}

func NewWithProducer(producer sarama.AsyncProducer, topic string) *Broadcaster {
	if topic == "" {
		topic = "bidhouse.activity"
	}
	b := &Broadcaster{producer: producer, topic: topic, done: make(chan struct{})}
	go b.drain()
	return b
}

// drain runs until the producer closes both result channels.
func (b *Broadcaster) drain() {
	defer close(b.done)
	errs, successes := b.producer.Errors(), b.producer.Successes()
	for errs != nil || successes != nil {
		select {
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.failed.Add(1)
			slog.Error("Failed to publish activity",
				slog.String("type", "sys"),
				slog.String("topic", perr.Msg.Topic),
				slog.Any("error", perr.Err))
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			slog.Debug("Activity published",
				slog.String("type", "sys"),
				slog.Int("partition", int(msg.Partition)),
				slog.Int64("offset", msg.Offset))
		}
	}
}

// Record sends one activity. Messages are keyed by listing so a consumer
// sees each auction's events in order.
func (b *Broadcaster) Record(ctx context.Context, activity models.Activity) error {
	payload, err := json.Marshal(Event{
		V:         eventVersion,
		ID:        uuid.NewString(),
		Type:      activity.Kind,
		UserID:    activity.UserID,
		ListingID: activity.ListingID,
		Amount:    activity.Amount,
		Message:   activity.Message,
		At:        activity.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(payload),
	}
	if activity.ListingID != nil {
		msg.Key = sarama.StringEncoder(strconv.FormatInt(*activity.ListingID, 10))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("failed to publish %s event: %w", activity.Kind, errClosed)
	}
	select {
	case b.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to publish %s event: %w", activity.Kind, ctx.Err())
	}
}

// Failed is the number of activities the producer gave up on.
func (b *Broadcaster) Failed() int64 {
	return b.failed.Load()
}

// Close flushes buffered activities and waits for their delivery results.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.producer.AsyncClose()
	<-b.done
	if n := b.failed.Load(); n > 0 {
		slog.Warn("Activity publisher closed with undelivered events",
			slog.String("type", "sys"),
			slog.Int64("failed", n))
	}
	return nil
}
