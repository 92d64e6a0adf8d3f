package rejection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// OpenerBackend is implemented by backends that also hold the banned-opener
// patterns learned from generic_opener rejections. The list is shared by
// every guard instance reading the same storage.
type OpenerBackend interface {
	AddOpener(ctx context.Context, pattern string) error
	Openers(ctx context.Context) ([]string, error)
}

const (
	redisOpenersKey = "guard:openers"
	fileOpenersKey  = "_banned_openers"
	dynamoOpenersPK = "GUARD#OPENERS"
	dynamoOpenersSK = "LIST"
)

// SaveLearnedOpener persists pattern on the first reachable backend that
// can hold openers.
func (s *Store) SaveLearnedOpener(ctx context.Context, pattern string) error {
	if pattern == "" {
		return nil
	}
	lastErr := fmt.Errorf("%w: no backend stores openers", ErrUnavailable)
	for _, b := range s.backends {
		ob, ok := b.(OpenerBackend)
		if !ok {
			continue
		}
		err := ob.AddOpener(ctx, pattern)
		if err == nil {
			return nil
		}
		if !canFallBack(ctx, err) {
			return err
		}
		rlog.Warn("opener backend unavailable, falling back", "backend", b.Name(), "error", err)
		lastErr = err
	}
	return lastErr
}

// LearnedOpeners returns the union of learned patterns across the chain,
// sorted. Patterns written to a fallback during an outage stay visible.
// Unreachable backends are skipped.
func (s *Store) LearnedOpeners(ctx context.Context) []string {
	seen := make(map[string]struct{})
	for _, b := range s.backends {
		ob, ok := b.(OpenerBackend)
		if !ok {
			continue
		}
		patterns, err := ob.Openers(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			rlog.Warn("learned openers unavailable", "backend", b.Name(), "error", err)
			continue
		}
		for _, p := range patterns {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddOpener implements OpenerBackend.
func (b *RedisBackend) AddOpener(ctx context.Context, pattern string) error {
	ctx, cancel := b.callContext(ctx)
	defer cancel()
	if err := b.client.SAdd(ctx, redisOpenersKey, pattern).Err(); err != nil {
		return fmt.Errorf("%w: redis sadd: %w", ErrUnavailable, err)
	}
	return nil
}

// Openers implements OpenerBackend.
func (b *RedisBackend) Openers(ctx context.Context) ([]string, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()
	patterns, err := b.client.SMembers(ctx, redisOpenersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis smembers: %w", ErrUnavailable, err)
	}
	return patterns, nil
}

func (b *FileBackend) openersPath() string {
	return filepath.Join(b.dir, fileOpenersKey+".list")
}

func (b *FileBackend) readOpeners() ([]string, error) {
	data, err := os.ReadFile(b.openersPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading openers: %w", ErrUnavailable, err)
	}
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err != nil {
		return nil, fmt.Errorf("decode openers: %w", err)
	}
	return patterns, nil
}

// AddOpener implements OpenerBackend. The list lives beside the records
// under the same per-key lock, in a file Sweep never touches.
func (b *FileBackend) AddOpener(_ context.Context, pattern string) error {
	return b.withLock(fileOpenersKey, func() error {
		patterns, err := b.readOpeners()
		if err != nil {
			return err
		}
		i := sort.SearchStrings(patterns, pattern)
		if i < len(patterns) && patterns[i] == pattern {
			return nil
		}
		patterns = append(patterns, "")
		copy(patterns[i+1:], patterns[i:])
		patterns[i] = pattern

		data, err := json.Marshal(patterns)
		if err != nil {
			return err
		}
		tmp := b.openersPath() + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("%w: writing openers: %w", ErrUnavailable, err)
		}
		if err := os.Rename(tmp, b.openersPath()); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("%w: renaming openers: %w", ErrUnavailable, err)
		}
		return nil
	})
}

// Openers implements OpenerBackend.
func (b *FileBackend) Openers(context.Context) ([]string, error) {
	return b.readOpeners()
}

type dynamoOpenersItem struct {
	PK       string   `dynamodbav:"PK"`
	SK       string   `dynamodbav:"SK"`
	Patterns []string `dynamodbav:"Patterns"`
	Version  int64    `dynamodbav:"Version"`
}

func (b *DynamoBackend) openersKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: dynamoOpenersPK},
		"SK": &types.AttributeValueMemberS{Value: dynamoOpenersSK},
	}
}

func (b *DynamoBackend) loadOpeners(ctx context.Context) (*dynamoOpenersItem, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()

	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.tableName),
		Key:            b.openersKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dynamodb get openers: %w", ErrUnavailable, err)
	}
	item := &dynamoOpenersItem{PK: dynamoOpenersPK, SK: dynamoOpenersSK}
	if len(out.Item) == 0 {
		return item, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, item); err != nil {
		return nil, fmt.Errorf("unmarshaling openers: %w", err)
	}
	return item, nil
}

// AddOpener implements OpenerBackend with the same versioned conditional
// put the record updates use.
func (b *DynamoBackend) AddOpener(ctx context.Context, pattern string) error {
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		item, err := b.loadOpeners(ctx)
		if err != nil {
			return err
		}
		i := sort.SearchStrings(item.Patterns, pattern)
		if i < len(item.Patterns) && item.Patterns[i] == pattern {
			return nil
		}
		item.Patterns = append(item.Patterns, "")
		copy(item.Patterns[i+1:], item.Patterns[i:])
		item.Patterns[i] = pattern

		prev := item.Version
		item.Version++
		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return fmt.Errorf("marshaling openers: %w", err)
		}
		input := &dynamodb.PutItemInput{TableName: aws.String(b.tableName), Item: av}
		if prev == 0 {
			input.ConditionExpression = aws.String("attribute_not_exists(PK)")
		} else {
			input.ConditionExpression = aws.String("Version = :v")
			input.ExpressionAttributeValues = map[string]types.AttributeValue{
				":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev, 10)},
			}
		}

		putCtx, cancel := b.callContext(ctx)
		_, err = b.client.PutItem(putCtx, input)
		cancel()
		if err == nil {
			return nil
		}
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			continue
		}
		return fmt.Errorf("%w: dynamodb put openers: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %s", ErrTooManyConflicts, dynamoOpenersPK)
}

// Openers implements OpenerBackend.
func (b *DynamoBackend) Openers(ctx context.Context) ([]string, error) {
	item, err := b.loadOpeners(ctx)
	if err != nil {
		return nil, err
	}
	return item.Patterns, nil
}
