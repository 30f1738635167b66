package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

// API is the subset of the DynamoDB client used by the repository
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// item is the stored shape of an image record. Labels are a string set.
type item struct {
	ID          string    `dynamodbav:"id"`
	ObjectPath  string    `dynamodbav:"objectPath"`
	ObjectSize  string    `dynamodbav:"objectSize"`
	TimeAdded   time.Time `dynamodbav:"timeAdded"`
	TimeUpdated time.Time `dynamodbav:"timeUpdated"`
	Labels      []string  `dynamodbav:"labels,stringset,omitempty"`
	Status      string    `dynamodbav:"status"`
}

func toItem(image *simpleimage.Image) item {
	return item{
		ID:          image.ID,
		ObjectPath:  image.ObjectPath,
		ObjectSize:  image.ObjectSize,
		TimeAdded:   image.TimeAdded,
		TimeUpdated: image.TimeUpdated,
		Labels:      image.Labels,
		Status:      string(image.Status),
	}
}

func (it item) image() *simpleimage.Image {
	var labels []string
	if len(it.Labels) > 0 {
		labels = it.Labels
	}
	return &simpleimage.Image{
		ID:          it.ID,
		ObjectPath:  it.ObjectPath,
		ObjectSize:  it.ObjectSize,
		TimeAdded:   it.TimeAdded.UTC(),
		TimeUpdated: it.TimeUpdated.UTC(),
		Labels:      labels,
		Status:      simpleimage.Status(it.Status),
	}
}

// Repository implements simpleimage.MetadataStore on a DynamoDB table with
// partition key "id" and sort key "objectPath".
type Repository struct {
	client API
	table  string
}

// New creates a repository bound to table
func New(client API, table string) (*Repository, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if table == "" {
		return nil, errors.New("table name is required")
	}
	return &Repository{client: client, table: table}, nil
}

func keyOf(key simpleimage.ImageKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: key.ID},
		"objectPath": &types.AttributeValueMemberS{Value: key.ObjectPath},
	}
}

func (r *Repository) Put(ctx context.Context, image *simpleimage.Image) error {
	av, err := attributevalue.MarshalMap(toItem(image))
	if err != nil {
		return fmt.Errorf("failed to marshal image: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	})
	if err != nil {
		return r.handleError("put image", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, key simpleimage.ImageKey) (*simpleimage.Image, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, r.handleError("get image", err)
	}
	if len(out.Item) == 0 {
		return nil, simpleimage.ErrRecordNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal image: %w", err)
	}
	return it.image(), nil
}

func (r *Repository) Delete(ctx context.Context, key simpleimage.ImageKey) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       keyOf(key),
	})
	if err != nil {
		return r.handleError("delete image", err)
	}
	return nil
}

// Scan queries the id partition when filter.ID is set and scans the table
// otherwise. Limit counts matches, not evaluated items.
func (r *Repository) Scan(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	if filter.ID != "" {
		return r.queryPartition(ctx, filter)
	}
	return r.scanTable(ctx, filter)
}

func (r *Repository) queryPartition(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key("id").Equal(expression.Value(filter.ID)))
	if cond, ok := filterCondition(filter); ok {
		builder = builder.WithFilter(cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var images []*simpleimage.Image
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, r.handleError("query images", err)
		}
		if images, err = appendItems(images, page.Items, filter); err != nil {
			return nil, err
		}
		if filter.Full(len(images)) {
			break
		}
	}
	return images, nil
}

func (r *Repository) scanTable(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(r.table),
	}
	if cond, ok := filterCondition(filter); ok {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build scan expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var images []*simpleimage.Image
	paginator := dynamodb.NewScanPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, r.handleError("scan images", err)
		}
		if images, err = appendItems(images, page.Items, filter); err != nil {
			return nil, err
		}
		if filter.Full(len(images)) {
			break
		}
	}
	return images, nil
}

// filterCondition builds the non-key part of the filter
func filterCondition(filter simpleimage.ScanFilter) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if filter.ObjectPath != "" {
		conds = append(conds, expression.Name("objectPath").Equal(expression.Value(filter.ObjectPath)))
	}
	if filter.Label != "" {
		conds = append(conds, expression.Contains(expression.Name("labels"), filter.Label))
	}

	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	default:
		return expression.And(conds[0], conds[1], conds[2:]...), true
	}
}

func appendItems(images []*simpleimage.Image, items []map[string]types.AttributeValue, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	var page []item
	if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal images: %w", err)
	}
	for _, it := range page {
		if filter.Full(len(images)) {
			break
		}
		images = append(images, it.image())
	}
	return images, nil
}

func (r *Repository) UpdateLabels(ctx context.Context, key simpleimage.ImageKey, labels []string, updatedAt time.Time) error {
	labels = simpleimage.NormalizeLabels(labels)
	ts, err := attributevalue.Marshal(updatedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	// An empty string set is not storable, so no labels removes the attribute.
	update := "SET timeUpdated = :t REMOVE labels"
	values := map[string]types.AttributeValue{":t": ts}
	if len(labels) > 0 {
		update = "SET labels = :labels, timeUpdated = :t"
		values[":labels"] = &types.AttributeValueMemberSS{Value: labels}
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       keyOf(key),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return simpleimage.ErrRecordNotFound
		}
		return r.handleError("update labels", err)
	}
	return nil
}

func (r *Repository) handleError(operation string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("table %s does not exist: %w", r.table, err)
	}
	return fmt.Errorf("dynamodb error in %s: %w", operation, err)
}
