package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"pagewalker/pkg/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each record to a topic, one message per record.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a producer for the given brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewKafkaWithWriter builds a sink using a custom writer (tests).
func NewKafkaWithWriter(writer messageWriter) *Kafka {
	return &Kafka{writer: writer}
}

// Emit publishes the record as a JSON message keyed by the target label, so
// every record of one crawl lands on the same partition in emission order.
func (k *Kafka) Emit(ctx context.Context, target string, rec types.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := kafka.Message{
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if target != "" {
		msg.Key = []byte(target)
	}
	return k.writer.WriteMessages(ctx, msg)
}

// Close shuts down the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
