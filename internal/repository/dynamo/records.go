package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/metrics"
	"github.com/ignite/tabular-ingest/internal/repository"
)

// recordItem is one RECORD item. Data holds the row as a JSON document;
// the typed values round-trip through Scalar's JSON form.
type recordItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	ID        string `dynamodbav:"ID"`
	JobID     string `dynamodbav:"JobID"`
	RowNumber int64  `dynamodbav:"RowNumber"`
	Data      string `dynamodbav:"Data"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

func (it recordItem) toDomain() (*domain.Record, error) {
	rec := &domain.Record{
		ID:        it.ID,
		JobID:     it.JobID,
		RowNumber: it.RowNumber,
	}
	if err := json.Unmarshal([]byte(it.Data), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshaling record data: %w", err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, it.CreatedAt); err != nil {
		return nil, fmt.Errorf("parsing CreatedAt: %w", err)
	}
	return rec, nil
}

// RecordRepo implements repository.Records against DynamoDB. Bulk inserts
// ride BatchWriteItem, the store's native batch path.
type RecordRepo struct {
	db    *dynamodb.Client
	table string
}

func (r *RecordRepo) BulkInsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	timer := prometheus.NewTimer(metrics.BatchInsertDuration)
	defer timer.ObserveDuration()
	metrics.BatchSizeHistogram.Observe(float64(len(records)))

	now := time.Now().UTC()
	writes := make([]types.WriteRequest, 0, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}

		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("marshaling record %d: %w", rec.RowNumber, err)
		}
		av, err := attributevalue.MarshalMap(recordItem{
			PK:        jobPartitionKey(rec.JobID),
			SK:        recordSortKey(rec.RowNumber),
			ID:        rec.ID,
			JobID:     rec.JobID,
			RowNumber: rec.RowNumber,
			Data:      string(data),
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshaling record %d: %w", rec.RowNumber, err)
		}
		writes = append(writes, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	for start := 0; start < len(writes); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(writes) {
			end = len(writes)
		}
		if err := r.writeBatch(ctx, writes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// writeBatch submits up to maxBatchWriteItems requests and re-submits
// whatever comes back unprocessed. Throttled writes surface that way
// rather than as errors, so a brief pause before each retry.
func (r *RecordRepo) writeBatch(ctx context.Context, writes []types.WriteRequest) error {
	for attempt := 0; len(writes) > 0; attempt++ {
		out, err := r.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.table: writes},
		})
		if err != nil {
			return fmt.Errorf("batch writing records: %w", err)
		}
		writes = out.UnprocessedItems[r.table]
		if len(writes) == 0 {
			return nil
		}
		if attempt >= maxUnprocessedRetries {
			return fmt.Errorf("batch write left %d records unprocessed after %d retries", len(writes), attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return nil
}

func (r *RecordRepo) ListByJob(ctx context.Context, jobID string, page, size int) ([]domain.Record, error) {
	if size <= 0 {
		size = repository.DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	skip := (page - 1) * size

	records := make([]domain.Record, 0, size)
	input := r.recordQueryInput(jobID)
	for {
		result, err := r.db.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("querying records: %w", err)
		}
		for _, raw := range result.Items {
			if skip > 0 {
				skip--
				continue
			}
			rec, err := unmarshalRecord(raw)
			if err != nil {
				return nil, err
			}
			records = append(records, *rec)
			if len(records) == size {
				return records, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			return records, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (r *RecordRepo) CountByJob(ctx context.Context, jobID string) (int64, error) {
	input := r.recordQueryInput(jobID)
	input.Select = types.SelectCount

	var total int64
	for {
		result, err := r.db.Query(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("counting records: %w", err)
		}
		total += int64(result.Count)
		if result.LastEvaluatedKey == nil {
			return total, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (r *RecordRepo) DeleteByJob(ctx context.Context, jobID string) error {
	input := r.recordQueryInput(jobID)
	input.ProjectionExpression = aws.String("PK, SK")

	var writes []types.WriteRequest
	for {
		result, err := r.db.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("querying records for delete: %w", err)
		}
		for _, raw := range result.Items {
			writes = append(writes, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"PK": raw["PK"],
						"SK": raw["SK"],
					},
				},
			})
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	for start := 0; start < len(writes); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(writes) {
			end = len(writes)
		}
		if err := r.writeBatch(ctx, writes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Search walks the job's records in row order and keeps those where any
// single value contains term case-insensitively. Values are tested one at
// a time, so a match never spans two columns or leaks in from a column
// name. Results are capped at repository.SearchLimit.
func (r *RecordRepo) Search(ctx context.Context, jobID, term string) ([]domain.Record, error) {
	needle := strings.ToLower(term)

	records := make([]domain.Record, 0)
	input := r.recordQueryInput(jobID)
	for {
		result, err := r.db.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("searching records: %w", err)
		}
		for _, raw := range result.Items {
			rec, err := unmarshalRecord(raw)
			if err != nil {
				return nil, err
			}
			if !anyValueContains(rec.Data, needle) {
				continue
			}
			records = append(records, *rec)
			if len(records) == repository.SearchLimit {
				return records, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			return records, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// recordQueryInput is the shared key condition selecting every RECORD item
// of one job, ascending by row number.
func (r *RecordRepo) recordQueryInput(jobID string) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :rec)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: jobPartitionKey(jobID)},
			":rec": &types.AttributeValueMemberS{Value: recordSortPrefix},
		},
	}
}

func unmarshalRecord(raw map[string]types.AttributeValue) (*domain.Record, error) {
	var it recordItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	return it.toDomain()
}

// anyValueContains reports whether any rendered cell value contains the
// lowercase needle. Null cells never match.
func anyValueContains(data map[string]domain.Scalar, needle string) bool {
	for _, v := range data {
		if v.IsNull() {
			continue
		}
		if strings.Contains(strings.ToLower(v.String()), needle) {
			return true
		}
	}
	return false
}
