package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/rhu/rhu/internal/platform/db"
)

// RelayStore is the outbox side of the notifications table.
type RelayStore interface {
	ClaimUnrelayed(ctx context.Context, limit int) ([]*Notification, error)
	MarkRelayed(ctx context.Context, ids []int64, at time.Time) error
}

// Publisher is the subset of *kafka.Writer the relay uses.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// RelayObserver receives the number of rows relayed per outcome.
type RelayObserver interface {
	NotificationsRelayed(n int, outcome string)
}

// Relay publishes unrelayed notification rows and stamps relayed_at. Rows
// are claimed and stamped in one transaction, so a failed publish leaves
// them for the next run.
type Relay struct {
	store    RelayStore
	tx       db.TxRunner
	pub      Publisher
	observer RelayObserver
	logger   zerolog.Logger
	now      func() time.Time
}

func NewRelay(store RelayStore, tx db.TxRunner, pub Publisher, observer RelayObserver, logger zerolog.Logger) *Relay {
	return &Relay{store: store, tx: tx, pub: pub, observer: observer, logger: logger, now: time.Now}
}

// NewKafkaWriter returns a writer keyed by recipient so one patient's
// notifications stay ordered on a partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
}

// Run relays up to batch rows and returns how many were published.
func (r *Relay) Run(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	var published int
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		rows, err := r.store.ClaimUnrelayed(ctx, batch)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(rows))
		ids := make([]int64, 0, len(rows))
		for _, n := range rows {
			msg, err := encodeMessage(n)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
			ids = append(ids, n.ID)
		}

		if err := r.pub.WriteMessages(ctx, msgs...); err != nil {
			r.observe(len(rows), "failed")
			return fmt.Errorf("publish %d notifications: %w", len(rows), err)
		}
		if err := r.store.MarkRelayed(ctx, ids, r.now().UTC()); err != nil {
			return err
		}
		published = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.observe(published, "published")
	r.logger.Info().Int("published", published).Msg("notification relay batch done")
	return published, nil
}

func (r *Relay) observe(n int, outcome string) {
	if r.observer != nil {
		r.observer.NotificationsRelayed(n, outcome)
	}
}

func encodeMessage(n *Notification) (kafka.Message, error) {
	value, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification %d: %w", n.ID, err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(n.UserID, 10)),
		Value: value,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
			{Key: "priority", Value: []byte(n.Priority)},
		},
	}, nil
}
