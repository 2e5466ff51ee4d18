// Package dynamo implements the repository contract on a single DynamoDB
// table. Every item of a job lives in one partition:
//
//	PK JOB#<id>  SK META               job metadata and counters
//	PK JOB#<id>  SK SCHEMA             detected schema
//	PK JOB#<id>  SK RECORD#<row>       one persisted data row
//
// Record sort keys zero-pad the row number so lexicographic key order is
// numeric row order, which makes ascending-rowNumber reads a plain Query.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/tabular-ingest/internal/repository"
)

const (
	jobKeyPrefix     = "JOB#"
	metaSortKey      = "META"
	schemaSortKey    = "SCHEMA"
	recordSortPrefix = "RECORD#"

	// maxBatchWriteItems is the BatchWriteItem request ceiling.
	maxBatchWriteItems = 25

	// maxUnprocessedRetries bounds how often a batch write re-submits items
	// DynamoDB returned unprocessed before giving up.
	maxUnprocessedRetries = 5
)

func jobPartitionKey(jobID string) string { return jobKeyPrefix + jobID }

// recordSortKey renders a row number as a fixed-width sort key. Twelve
// digits covers any row count a single import can reach.
func recordSortKey(rowNumber int64) string {
	return fmt.Sprintf("%s%012d", recordSortPrefix, rowNumber)
}

// Connect loads AWS configuration and returns a DynamoDB client. An empty
// profile uses the default credential chain.
func Connect(ctx context.Context, region, profile string) (*dynamodb.Client, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg), nil
}

// NewStore returns the repository trio backed by one DynamoDB table.
func NewStore(db *dynamodb.Client, table string) repository.Store {
	return repository.Store{
		Jobs:    &JobRepo{db: db, table: table},
		Schemas: &SchemaRepo{db: db, table: table},
		Records: &RecordRepo{db: db, table: table},
	}
}

// TableExists reports whether the backing table answers DescribeTable.
// Startup uses it to fail fast on a misconfigured table name.
func TableExists(ctx context.Context, db *dynamodb.Client, table string) bool {
	_, err := db.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	return err == nil
}

func conditionFailed(err error) bool {
	var cf *types.ConditionalCheckFailedException
	return errors.As(err, &cf)
}
