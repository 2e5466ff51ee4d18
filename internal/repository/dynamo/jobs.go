package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/repository"
)

// jobItem is the META item of a job partition. Status and the counters are
// native attributes so progress updates can SET them in place instead of
// rewriting a serialized blob.
type jobItem struct {
	PK               string `dynamodbav:"PK"`
	SK               string `dynamodbav:"SK"`
	ID               string `dynamodbav:"ID"`
	FileName         string `dynamodbav:"FileName"`
	FileType         string `dynamodbav:"FileType"`
	FileSize         int64  `dynamodbav:"FileSize"`
	Status           string `dynamodbav:"Status"`
	TotalRecords     int64  `dynamodbav:"TotalRecords"`
	ProcessedRecords int64  `dynamodbav:"ProcessedRecords"`
	FailedRecords    int64  `dynamodbav:"FailedRecords"`
	ErrorMessage     string `dynamodbav:"ErrorMessage,omitempty"`
	StartedAt        string `dynamodbav:"StartedAt,omitempty"`
	CompletedAt      string `dynamodbav:"CompletedAt,omitempty"`
	CreatedAt        string `dynamodbav:"CreatedAt"`
	UpdatedAt        string `dynamodbav:"UpdatedAt"`
}

func newJobItem(job *domain.Job) jobItem {
	it := jobItem{
		PK:               jobPartitionKey(job.ID),
		SK:               metaSortKey,
		ID:               job.ID,
		FileName:         job.FileName,
		FileType:         job.FileType,
		FileSize:         job.FileSize,
		Status:           string(job.Status),
		TotalRecords:     job.TotalRecords,
		ProcessedRecords: job.ProcessedRecords,
		FailedRecords:    job.FailedRecords,
		CreatedAt:        job.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:        job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if job.ErrorMessage != nil {
		it.ErrorMessage = *job.ErrorMessage
	}
	if job.StartedAt != nil {
		it.StartedAt = job.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if job.CompletedAt != nil {
		it.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return it
}

func (it jobItem) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:               it.ID,
		FileName:         it.FileName,
		FileType:         it.FileType,
		FileSize:         it.FileSize,
		Status:           domain.JobStatus(it.Status),
		TotalRecords:     it.TotalRecords,
		ProcessedRecords: it.ProcessedRecords,
		FailedRecords:    it.FailedRecords,
	}
	if it.ErrorMessage != "" {
		msg := it.ErrorMessage
		job.ErrorMessage = &msg
	}

	var err error
	if job.StartedAt, err = optionalTime(it.StartedAt); err != nil {
		return nil, fmt.Errorf("parsing StartedAt: %w", err)
	}
	if job.CompletedAt, err = optionalTime(it.CompletedAt); err != nil {
		return nil, fmt.Errorf("parsing CompletedAt: %w", err)
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, it.CreatedAt); err != nil {
		return nil, fmt.Errorf("parsing CreatedAt: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, it.UpdatedAt); err != nil {
		return nil, fmt.Errorf("parsing UpdatedAt: %w", err)
	}
	return job, nil
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// JobRepo implements repository.Jobs against DynamoDB.
type JobRepo struct {
	db    *dynamodb.Client
	table string
}

func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	// No server clock here, so the timestamps are stamped client-side.
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	av, err := attributevalue.MarshalMap(newJobItem(job))
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting job to DynamoDB: %w", err)
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	result, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPartitionKey(id)},
			"SK": &types.AttributeValueMemberS{Value: metaSortKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting job from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, repository.ErrJobNotFound
	}

	var it jobItem
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return it.toDomain()
}

func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = time.Now().UTC()

	av, err := attributevalue.MarshalMap(newJobItem(job))
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if conditionFailed(err) {
		return repository.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("updating job in DynamoDB: %w", err)
	}
	return nil
}

func (r *JobRepo) UpdateProgress(ctx context.Context, id string, processed, failed int64) error {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPartitionKey(id)},
			"SK": &types.AttributeValueMemberS{Value: metaSortKey},
		},
		UpdateExpression:    aws.String("SET ProcessedRecords = :p, FailedRecords = :f, UpdatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", processed)},
			":f": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", failed)},
			":u": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if conditionFailed(err) {
		return repository.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("updating job progress in DynamoDB: %w", err)
	}
	return nil
}

// List scans for META items, orders them newest first and pages in code.
// Job counts stay small enough that a filtered scan is the pragmatic
// trade for not carrying a listing GSI.
func (r *JobRepo) List(ctx context.Context, page, size int) ([]domain.Job, int, error) {
	if size <= 0 {
		size = repository.DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}

	items, err := r.scanMeta(ctx, "")
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]domain.Job, 0, len(items))
	for _, it := range items {
		job, err := it.toDomain()
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	total := len(jobs)
	start := (page - 1) * size
	if start >= total {
		return []domain.Job{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return jobs[start:end], total, nil
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPartitionKey(id)},
			"SK": &types.AttributeValueMemberS{Value: metaSortKey},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("deleting job from DynamoDB: %w", err)
	}
	if len(result.Attributes) == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) FailStaleProcessing(ctx context.Context, reason string) (int, error) {
	items, err := r.scanMeta(ctx, string(domain.JobProcessing))
	if err != nil {
		return 0, err
	}

	swept := 0
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, it := range items {
		_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(r.table),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: it.PK},
				"SK": &types.AttributeValueMemberS{Value: metaSortKey},
			},
			UpdateExpression: aws.String(
				"SET #st = :failed, ErrorMessage = :msg, CompletedAt = :now, UpdatedAt = :now"),
			// Re-check the status so a job a worker finished between the
			// scan and this write is left alone.
			ConditionExpression: aws.String("#st = :processing"),
			ExpressionAttributeNames: map[string]string{
				"#st": "Status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":failed":     &types.AttributeValueMemberS{Value: string(domain.JobFailed)},
				":processing": &types.AttributeValueMemberS{Value: string(domain.JobProcessing)},
				":msg":        &types.AttributeValueMemberS{Value: reason},
				":now":        &types.AttributeValueMemberS{Value: now},
			},
		})
		if conditionFailed(err) {
			continue
		}
		if err != nil {
			return swept, fmt.Errorf("failing stale job %s: %w", it.ID, err)
		}
		swept++
	}
	return swept, nil
}

// scanMeta collects every META item, optionally filtered to one status,
// following LastEvaluatedKey across scan pages.
func (r *JobRepo) scanMeta(ctx context.Context, status string) ([]jobItem, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("SK = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: metaSortKey},
		},
	}
	if status != "" {
		input.FilterExpression = aws.String("SK = :meta AND #st = :status")
		input.ExpressionAttributeNames = map[string]string{"#st": "Status"}
		input.ExpressionAttributeValues[":status"] = &types.AttributeValueMemberS{Value: status}
	}

	var items []jobItem
	for {
		result, err := r.db.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scanning jobs: %w", err)
		}
		for _, raw := range result.Items {
			var it jobItem
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, fmt.Errorf("unmarshaling job: %w", err)
			}
			items = append(items, it)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return items, nil
}
