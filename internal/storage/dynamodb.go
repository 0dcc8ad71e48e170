package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var _ DedupStore = (*DynamoDBDedupStore)(nil)

// an existing claim only blocks while it is unexpired; DynamoDB TTL deletion lags
const claimCondition = "attribute_not_exists(event_id) OR expires_at <= :now"

type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBDedupStore keeps one item per claimed event. expires_at is epoch
// seconds so the table's TTL setting can reap old claims.
type DynamoDBDedupStore struct {
	api   DynamoDBAPI
	table string
	now   func() time.Time
}

type dynamoClaim struct {
	EventID   string `dynamodbav:"event_id"`
	ClaimedAt int64  `dynamodbav:"claimed_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// NewDynamoDBDedupStore loads the default AWS config chain. A non-empty endpoint
// overrides the service URL, e.g. for LocalStack.
func NewDynamoDBDedupStore(ctx context.Context, table, endpoint string) (*DynamoDBDedupStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewDynamoDBDedupStoreWithAPI(client, table), nil
}

func NewDynamoDBDedupStoreWithAPI(api DynamoDBAPI, table string) *DynamoDBDedupStore {
	return &DynamoDBDedupStore{api: api, table: table, now: time.Now}
}

func (s *DynamoDBDedupStore) item(eventID string, now time.Time, ttl time.Duration) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(dynamoClaim{
		EventID:   eventID,
		ClaimedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook claim: %w", err)
	}
	return item, nil
}

func (s *DynamoDBDedupStore) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	now := s.now()
	item, err := s.item(eventID, now, ttl)
	if err != nil {
		return false, err
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String(claimCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	return true, nil
}

func (s *DynamoDBDedupStore) Commit(ctx context.Context, eventID string, ttl time.Duration) error {
	item, err := s.item(eventID, s.now(), ttl)
	if err != nil {
		return err
	}

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("commit webhook event: %w", err)
	}
	return nil
}

func (s *DynamoDBDedupStore) Release(ctx context.Context, eventID string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"event_id": eventID})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	if _, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	}); err != nil {
		return fmt.Errorf("release webhook event: %w", err)
	}
	return nil
}
