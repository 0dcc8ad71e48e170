package bus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

var _ Publisher = (*SNSPublisher)(nil)

const fifoSuffix = ".fifo"

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes every pattern to a single topic and tags each message
// with a pattern attribute that subscriptions can filter on.
type SNSPublisher struct {
	api      SNSAPI
	topicARN string
}

// NewSNSPublisher loads the default AWS config chain. A non-empty endpoint
// overrides the service URL, e.g. for LocalStack.
func NewSNSPublisher(ctx context.Context, topicARN, endpoint string) (*SNSPublisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewSNSPublisherWithAPI(client, topicARN), nil
}

func NewSNSPublisherWithAPI(api SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{api: api, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			patternHeader: {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Pattern),
			},
		},
	}
	if strings.HasSuffix(p.topicARN, fifoSuffix) {
		input.MessageGroupId = aws.String(msg.Key)
		input.MessageDeduplicationId = aws.String(deduplicationID(msg, data))
	}

	if _, err := p.api.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish to %s: %w", p.topicARN, err)
	}
	return nil
}

func (p *SNSPublisher) Close() error { return nil }

// deduplicationID is the source event id, or a digest of the payload when the
// message has none. SNS caps it at 128 characters.
func deduplicationID(msg Message, data []byte) string {
	if msg.ID != "" && len(msg.ID) <= 128 {
		return msg.ID
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
