package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/vision-archiver/internal/pipeline"
	"github.com/rs/zerolog/log"
)

const (
	pkPrefix = "OBJECT#"
	skPrefix = "RUN#"
)

// Ledger writes invocation records to DynamoDB. It implements
// pipeline.Ledger.
type Ledger struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ pipeline.Ledger = (*Ledger)(nil)

// NewLedger creates a Ledger for the given table.
func NewLedger(client DynamoAPI, tableName string) *Ledger {
	return &Ledger{client: client, tableName: tableName, now: time.Now}
}

func ledgerPK(object string) string {
	return pkPrefix + object
}

func ledgerSK(startedAt time.Time, runID string) string {
	return skPrefix + startedAt.UTC().Format(time.RFC3339Nano) + "#" + runID
}

// Record implements pipeline.Ledger.
func (l *Ledger) Record(ctx context.Context, e pipeline.LedgerEntry) error {
	run := &Run{
		Object:      e.Object,
		RunID:       e.RunID,
		URI:         e.URI,
		Size:        e.Size,
		State:       string(e.State),
		Kind:        e.Kind,
		Step:        string(e.Step),
		Destination: e.Destination,
		ArchivedTo:  e.ArchivedTo,
		TextHits:    e.TextHits,
		LabelHits:   e.LabelHits,
		Attempts:    e.Attempts,
		Error:       e.Error,
		StartedAt:   e.StartedAt.UTC(),
		DurationMs:  e.Duration.Milliseconds(),
	}
	return l.Put(ctx, run)
}

// Put writes a Run, replacing any item with the same key.
func (l *Ledger) Put(ctx context.Context, run *Run) error {
	pk := ledgerPK(run.Object)
	sk := ledgerSK(run.StartedAt, run.RunID)

	start := time.Now()
	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(l.now().Add(LedgerTTL).Unix(), 10)}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &l.tableName,
		Item:      item,
	})
	duration := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("pk", pk).Str("sk", sk).Dur("duration", duration).Msg("Ledger: DynamoDB PutItem failed")
		return fmt.Errorf("PutItem run PK=%s SK=%s: %w", pk, sk, err)
	}
	log.Debug().Str("pk", pk).Str("sk", sk).Str("state", run.State).Dur("duration", duration).Msg("Ledger: run persisted")
	return nil
}

// ListRuns returns up to limit runs for an object, newest first.
// A limit of zero returns every run.
func (l *Ledger) ListRuns(ctx context.Context, object string, limit int) ([]Run, error) {
	pk := ledgerPK(object)
	input := &dynamodb.QueryInput{
		TableName:              &l.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
			":sk": &types.AttributeValueMemberS{Value: skPrefix},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	start := time.Now()
	var runs []Run
	for {
		result, err := l.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query runs PK=%s: %w", pk, err)
		}
		for _, item := range result.Items {
			var r Run
			if err := attributevalue.UnmarshalMap(item, &r); err != nil {
				log.Warn().Err(err).Str("pk", pk).Msg("Skipping unreadable ledger item")
				continue
			}
			runs = append(runs, r)
		}
		if result.LastEvaluatedKey == nil || (limit > 0 && len(runs) >= limit) {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	log.Debug().Str("pk", pk).Int("count", len(runs)).Dur("duration", time.Since(start)).Msg("Ledger: runs listed")
	return runs, nil
}
