package rejection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/outreach-guard/internal/config"
	"github.com/ignite/outreach-guard/internal/domain"
)

// DynamoAPI is the subset of the DynamoDB client the backend uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is the stored shape of a rejection record. TTL is the epoch
// second after which DynamoDB's TTL reaper may delete the item.
type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Version   int64  `dynamodbav:"Version"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

const dynamoSortKey = "RECORD"

// DynamoBackend stores rejection records in a single DynamoDB table using
// conditional puts on a version attribute as a compare-and-swap.
type DynamoBackend struct {
	client      DynamoAPI
	tableName   string
	timeout     time.Duration
	maxAttempts int
}

// NewDynamoBackend creates a backend on an existing client.
func NewDynamoBackend(client DynamoAPI, tableName string, timeout time.Duration) *DynamoBackend {
	return &DynamoBackend{
		client:      client,
		tableName:   tableName,
		timeout:     timeout,
		maxAttempts: defaultMaxAttempts,
	}
}

// NewDynamoBackendFromConfig loads AWS configuration the same way for ECS
// (IAM role) and local runs (named profile or static keys against
// dynamodb-local).
func NewDynamoBackendFromConfig(ctx context.Context, cfg config.StorageConfig, timeout time.Duration) (*DynamoBackend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	return NewDynamoBackend(client, cfg.DynamoDBTable, timeout), nil
}

// Name implements Backend.
func (b *DynamoBackend) Name() string { return "dynamodb" }

func (b *DynamoBackend) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "REJECTION#" + key},
		"SK": &types.AttributeValueMemberS{Value: dynamoSortKey},
	}
}

func (b *DynamoBackend) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Load implements Backend.
func (b *DynamoBackend) Load(ctx context.Context, key string) (*domain.RejectionRecord, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		Key:            b.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dynamodb get item: %w", ErrUnavailable, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	var rec domain.RejectionRecord
	if err := json.Unmarshal([]byte(item.Data), &rec); err != nil {
		return nil, fmt.Errorf("decode rejection record: %w", err)
	}
	rec.Version = item.Version
	return &rec, nil
}

// Update implements Backend.
func (b *DynamoBackend) Update(ctx context.Context, key string, mutate Mutator) (*domain.RejectionRecord, error) {
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		rec, err := b.Load(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			rec = &domain.RejectionRecord{}
		case err != nil:
			return nil, err
		}

		prevVersion := rec.Version
		if err := mutate(rec); err != nil {
			return nil, err
		}
		rec.Version = prevVersion + 1

		err = b.put(ctx, key, rec, prevVersion)
		if err == nil {
			return rec, nil
		}
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			continue
		}
		return nil, fmt.Errorf("%w: dynamodb put item: %w", ErrUnavailable, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrTooManyConflicts, key)
}

func (b *DynamoBackend) put(ctx context.Context, key string, rec *domain.RejectionRecord, prevVersion int64) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	item := dynamoItem{
		PK:        "REJECTION#" + key,
		SK:        dynamoSortKey,
		Data:      string(data),
		Version:   rec.Version,
		Timestamp: rec.LastRejectedAt.UTC().Format(time.RFC3339),
	}
	if rec.TTLDays > 0 {
		item.TTL = rec.ExpiresAt().Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      av,
	}
	if prevVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		input.ConditionExpression = aws.String("Version = :v")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(prevVersion, 10)},
		}
	}

	ctx, cancel := b.callContext(ctx)
	defer cancel()
	_, err = b.client.PutItem(ctx, input)
	return err
}
