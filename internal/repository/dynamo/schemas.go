package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/repository"
)

// schemaItem is the SCHEMA item of a job partition. The column list is
// stored as a JSON document; nothing queries inside it.
type schemaItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	ID        string `dynamodbav:"ID"`
	JobID     string `dynamodbav:"JobID"`
	FileName  string `dynamodbav:"FileName"`
	Columns   string `dynamodbav:"Columns"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

// SchemaRepo implements repository.Schemas against DynamoDB.
type SchemaRepo struct {
	db    *dynamodb.Client
	table string
}

func (r *SchemaRepo) Create(ctx context.Context, schema *domain.Schema) error {
	if schema.ID == "" {
		schema.ID = uuid.New().String()
	}
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = time.Now().UTC()
	}

	columns, err := json.Marshal(schema.Columns)
	if err != nil {
		return fmt.Errorf("marshaling schema columns: %w", err)
	}
	av, err := attributevalue.MarshalMap(schemaItem{
		PK:        jobPartitionKey(schema.JobID),
		SK:        schemaSortKey,
		ID:        schema.ID,
		JobID:     schema.JobID,
		FileName:  schema.FileName,
		Columns:   string(columns),
		CreatedAt: schema.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}

	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting schema to DynamoDB: %w", err)
	}
	return nil
}

func (r *SchemaRepo) GetByJob(ctx context.Context, jobID string) (*domain.Schema, error) {
	result, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPartitionKey(jobID)},
			"SK": &types.AttributeValueMemberS{Value: schemaSortKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting schema from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, repository.ErrSchemaNotFound
	}

	var it schemaItem
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	schema := &domain.Schema{
		ID:       it.ID,
		JobID:    it.JobID,
		FileName: it.FileName,
	}
	if err := json.Unmarshal([]byte(it.Columns), &schema.Columns); err != nil {
		return nil, fmt.Errorf("unmarshaling schema columns: %w", err)
	}
	if schema.CreatedAt, err = time.Parse(time.RFC3339Nano, it.CreatedAt); err != nil {
		return nil, fmt.Errorf("parsing CreatedAt: %w", err)
	}
	return schema, nil
}

func (r *SchemaRepo) DeleteByJob(ctx context.Context, jobID string) error {
	_, err := r.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPartitionKey(jobID)},
			"SK": &types.AttributeValueMemberS{Value: schemaSortKey},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting schema from DynamoDB: %w", err)
	}
	return nil
}
