package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/kafka-go"

	"github.com/AbNAt-Cell/NoteTaker/stt"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Kafka writes durable snapshots keyed by stream uid, so every snapshot
// of a stream lands on the same partition in order.
type Kafka struct {
	writer kafkaWriter
}

func NewKafka(writer kafkaWriter) *Kafka {
	return &Kafka{writer: writer}
}

func NewKafkaWriter(brokers []string, topic string, logger *log.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("kafka writer: " + fmt.Sprintf(msg, args...))
		}),
	}
}

func (k *Kafka) StoreTranscript(ctx context.Context, msg stt.DurableMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.UID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
			{Key: "platform", Value: []byte(msg.Platform)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.UID, err)
	}
	return nil
}
