// Package store persists the annotation ledger: one DynamoDB item per
// pipeline invocation, keyed by source object so the history of a given
// image can be listed newest first.
//
// Items share partition key OBJECT#{name}; the sort key is
// RUN#{startedAt RFC3339Nano}#{runId}. A TTL attribute (expiresAt)
// removes items after LedgerTTL.
package store

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// LedgerTTL is how long invocation records are kept.
const LedgerTTL = 30 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client used by the ledger.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Run is one ledger item.
type Run struct {
	Object      string    `json:"object" dynamodbav:"object"`
	RunID       string    `json:"runId" dynamodbav:"runId"`
	URI         string    `json:"uri,omitempty" dynamodbav:"uri,omitempty"`
	Size        int64     `json:"size" dynamodbav:"size"`
	State       string    `json:"state" dynamodbav:"state"`
	Kind        string    `json:"kind,omitempty" dynamodbav:"kind,omitempty"`
	Step        string    `json:"step" dynamodbav:"step"`
	Destination string    `json:"destination" dynamodbav:"destination"`
	ArchivedTo  string    `json:"archivedTo,omitempty" dynamodbav:"archivedTo,omitempty"`
	TextHits    int       `json:"textHits" dynamodbav:"textHits"`
	LabelHits   int       `json:"labelHits" dynamodbav:"labelHits"`
	Attempts    int       `json:"attempts" dynamodbav:"attempts"`
	Error       string    `json:"error,omitempty" dynamodbav:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt" dynamodbav:"startedAt"`
	DurationMs  int64     `json:"durationMs" dynamodbav:"durationMs"`
}
