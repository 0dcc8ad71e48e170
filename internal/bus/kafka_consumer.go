package bus

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/garrettladley/paygate/internal/xslog"
)

var _ Consumer = (*KafkaConsumer)(nil)

// Reply routing headers set by request/reply callers.
const (
	correlationIDHeader = "kafka_correlationId"
	replyTopicHeader    = "kafka_replyTopic"
)

const fetchRetryDelay = time.Second

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads one topic in a consumer group. Requests that carry reply
// headers are answered on the reply topic; offsets are committed once handled.
type KafkaConsumer struct {
	reader Reader
	writer Writer
}

// NewKafkaConsumer reads <prefix><pattern> as groupID and replies through its
// own writer.
func NewKafkaConsumer(brokers []string, prefix, pattern, groupID string) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    prefix + pattern,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewKafkaConsumerWithReader(r, newKafkaWriter(brokers))
}

func NewKafkaConsumerWithReader(r Reader, w Writer) *KafkaConsumer {
	return &KafkaConsumer{reader: r, writer: w}
}

func (c *KafkaConsumer) Consume(ctx context.Context, respond Responder) error {
	logger := xslog.FromContext(ctx)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WarnContext(ctx, "failed to fetch bus request", xslog.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		if err := c.handle(ctx, respond, m); err != nil {
			// left uncommitted so the group redelivers it
			logger.ErrorContext(ctx, "failed to answer bus request", xslog.Error(err))
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.ErrorContext(ctx, "failed to commit offset", xslog.Error(err))
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, respond Responder, m kafka.Message) error {
	logger := xslog.FromContext(ctx).With(xslog.Topic(m.Topic))

	req, err := Decode(m.Value)
	if err != nil {
		logger.ErrorContext(ctx, "dropping undecodable bus request", xslog.Error(err))
		return nil
	}

	correlationID := header(m.Headers, correlationIDHeader)
	if req.ID == "" {
		req.ID = correlationID
	}

	data, err := respondTo(ctx, respond, req)
	if err != nil {
		logger.WarnContext(ctx, "bus request failed", xslog.Pattern(req.Pattern), xslog.Error(err))
	}

	replyTopic := header(m.Headers, replyTopicHeader)
	if replyTopic == "" || data == nil {
		return nil
	}

	return c.writer.WriteMessages(ctx, kafka.Message{
		Topic: replyTopic,
		Key:   m.Key,
		Value: data,
		Headers: []kafka.Header{
			{Key: correlationIDHeader, Value: []byte(correlationID)},
		},
	})
}

func header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaConsumer) Close() error {
	return errors.Join(c.reader.Close(), c.writer.Close())
}
