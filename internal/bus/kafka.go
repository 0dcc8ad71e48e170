package bus

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

var _ Publisher = (*KafkaPublisher)(nil)

const (
	patternHeader = "pattern"
	idHeader      = "message-id"
)

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each message to the topic <prefix><pattern>, keyed by
// Message.Key so one order's events land on one partition.
type KafkaPublisher struct {
	writer Writer
	prefix string
}

func newKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(brokers []string, prefix string) *KafkaPublisher {
	w := newKafkaWriter(brokers)
	// WithRetry owns retries
	w.MaxAttempts = 1
	return NewKafkaPublisherWithWriter(w, prefix)
}

func NewKafkaPublisherWithWriter(w Writer, prefix string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, prefix: prefix}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	headers := []kafka.Header{{Key: patternHeader, Value: []byte(msg.Pattern)}}
	if msg.ID != "" {
		headers = append(headers, kafka.Header{Key: idHeader, Value: []byte(msg.ID)})
	}

	topic := p.prefix + msg.Pattern
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("kafka write to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
