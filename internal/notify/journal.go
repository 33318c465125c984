package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/events"
)

// Journal appends every domain event to a Kafka topic for downstream
// analytics. Appends are fire-and-forget from the engine's point of view;
// the bus logs and swallows failures like any other delivery error.
type Journal struct {
	writer *kafka.Writer
}

func NewJournal(brokers []string, topic string) *Journal {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Journal{writer: w}
}

func (j *Journal) Append(ev events.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := ev.Identity
	if ev.OrderID != 0 {
		key = strconv.FormatInt(ev.OrderID, 10)
	}
	return j.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (j *Journal) Close() error {
	if j.writer == nil {
		return nil
	}
	return j.writer.Close()
}
