package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
)

const (
	skLatestPhase = "PHASE#LATEST"
	phaseTTL      = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps one item per conversation in a single-table layout:
// PK = CONV#<id>, SK = PHASE#LATEST. Items expire after 30 days of inactivity.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ PhaseStore = (*DynamoStore)(nil)

// NewDynamoStore wraps api for tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("store: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("store: dynamodb table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// NewDynamoStoreFromEnvironment loads the default AWS configuration.
func NewDynamoStoreFromEnvironment(ctx context.Context, tableName string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

func convPK(conversationID int64) string {
	return "CONV#" + strconv.FormatInt(conversationID, 10)
}

// SavePhase writes rec unless the stored item is newer.
func (s *DynamoStore) SavePhase(ctx context.Context, rec models.PhaseRecord) error {
	ts := normalizeTimestamp(rec.Timestamp)
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: convPK(rec.ConversationID)},
			"SK":         &types.AttributeValueMemberS{Value: skLatestPhase},
			"record_id":  &types.AttributeValueMemberS{Value: rec.ID},
			"phase":      &types.AttributeValueMemberS{Value: string(rec.Phase)},
			"summary":    &types.AttributeValueMemberS{Value: rec.Summary},
			"confidence": &types.AttributeValueMemberN{Value: strconv.FormatFloat(rec.Confidence, 'f', -1, 64)},
			"source":     &types.AttributeValueMemberS{Value: rec.Source},
			"updated_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(ts.UnixNano(), 10)},
			"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(phaseTTL).Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR updated_at <= :ts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberN{Value: strconv.FormatInt(ts.UnixNano(), 10)},
		},
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		slog.Debug("DynamoStore SavePhase skipped stale record", "conversationID", rec.ConversationID)
		return nil
	}
	if err != nil {
		slog.Error("DynamoStore SavePhase failed", "error", err, "conversationID", rec.ConversationID)
		return fmt.Errorf("failed to save phase for conversation %d: %w", rec.ConversationID, err)
	}
	slog.Debug("DynamoStore SavePhase succeeded", "conversationID", rec.ConversationID, "phase", rec.Phase)
	return nil
}

// LatestPhase reads the conversation item with strong consistency.
func (s *DynamoStore) LatestPhase(ctx context.Context, conversationID int64) (*models.PhaseRecord, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skLatestPhase},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		slog.Error("DynamoStore LatestPhase failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load phase for conversation %d: %w", conversationID, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	rec, err := phaseRecordFromItem(conversationID, out.Item)
	if err != nil {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, err)
	}
	return rec, nil
}

// Close is a no-op; the SDK client holds no resources.
func (s *DynamoStore) Close() error { return nil }

func phaseRecordFromItem(conversationID int64, item map[string]types.AttributeValue) (*models.PhaseRecord, error) {
	rec := &models.PhaseRecord{
		ConversationID: conversationID,
		ID:             stringAttr(item, "record_id"),
		Phase:          models.Phase(stringAttr(item, "phase")),
		Summary:        stringAttr(item, "summary"),
		Source:         stringAttr(item, "source"),
	}
	if !rec.Phase.Valid() {
		return nil, fmt.Errorf("invalid stored phase %q", rec.Phase)
	}
	conf, err := strconv.ParseFloat(numberAttr(item, "confidence"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stored confidence: %w", err)
	}
	rec.Confidence = conf
	nanos, err := strconv.ParseInt(numberAttr(item, "updated_at"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid stored timestamp: %w", err)
	}
	rec.Timestamp = time.Unix(0, nanos).UTC()
	return rec, nil
}

func stringAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numberAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		return v.Value
	}
	return ""
}
