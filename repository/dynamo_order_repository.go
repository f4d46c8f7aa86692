package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Pinak57/localchef-server/models"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	ordersByCustomerIndex = "customerEmail-index"
	ordersByChefIndex     = "chefId-index"
)

// DynamoOrderRepository implements OrderRepository using DynamoDB. Guards are
// ConditionExpressions on UpdateItem.
type DynamoOrderRepository struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoOrderRepository(client *dynamodb.Client, table string) *DynamoOrderRepository {
	return &DynamoOrderRepository{client: client, table: table}
}

func (r *DynamoOrderRepository) key(id string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": id})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

func (r *DynamoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.table,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (r *DynamoOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	key, err := r.key(id)
	if err != nil {
		return nil, err
	}
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.table,
		Key:            key,
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var order models.Order
	if err := attributevalue.UnmarshalMap(out.Item, &order); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &order, nil
}

func (r *DynamoOrderRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.Order, error) {
	return r.query(ctx, ordersByCustomerIndex, "customerEmail", email)
}

func (r *DynamoOrderRepository) FindByChefID(ctx context.Context, chefID string) ([]models.Order, error) {
	return r.query(ctx, ordersByChefIndex, "chefId", chefID)
}

func (r *DynamoOrderRepository) query(ctx context.Context, index, attr, value string) ([]models.Order, error) {
	valAV, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal query value: %w", err)
	}
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 &r.table,
		IndexName:                 sdkaws.String(index),
		KeyConditionExpression:    sdkaws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": valAV},
	})

	orders := make([]models.Order, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Query %s failed: %w", index, err)
		}
		var batch []models.Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		orders = append(orders, batch...)
	}
	sortOrders(orders)
	return orders, nil
}

func (r *DynamoOrderRepository) FindAll(ctx context.Context) ([]models.Order, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: &r.table})

	orders := make([]models.Order, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Scan failed: %w", err)
		}
		var batch []models.Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		orders = append(orders, batch...)
	}
	sortOrders(orders)
	return orders, nil
}

func sortOrders(orders []models.Order) {
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderTime.After(orders[j].OrderTime) })
}

func (r *DynamoOrderRepository) Transition(ctx context.Context, t models.OrderTransition) (*models.Order, error) {
	key, err := r.key(t.OrderID)
	if err != nil {
		return nil, err
	}
	vals, err := marshalValues(map[string]interface{}{
		":pending": models.OrderStatusPending,
		":owner":   t.Owner.Value,
		":to":      t.To,
		":at":      t.At,
	})
	if err != nil {
		return nil, err
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.table,
		Key:                 key,
		UpdateExpression:    sdkaws.String("SET #status = :to, #ts = :at"),
		ConditionExpression: sdkaws.String("#status = :pending AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#status": "orderStatus",
			"#owner":  string(t.Owner.Field),
			"#ts":     t.To.TimestampField(),
		},
		ExpressionAttributeValues:           vals,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, ErrNotFound
			}
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("transition order failed: %w", err)
	}
	return unmarshalOrder(out.Attributes)
}

func (r *DynamoOrderRepository) MarkPaymentPending(ctx context.Context, orderID string) (bool, error) {
	key, err := r.key(orderID)
	if err != nil {
		return false, err
	}
	vals, err := marshalValues(map[string]interface{}{
		":unpaid":  models.PaymentStatusUnpaid,
		":pending": models.PaymentStatusPending,
	})
	if err != nil {
		return false, err
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           &r.table,
		Key:                                 key,
		UpdateExpression:                    sdkaws.String("SET #pay = :pending"),
		ConditionExpression:                 sdkaws.String("#pay = :unpaid"),
		ExpressionAttributeNames:            map[string]string{"#pay": "paymentStatus"},
		ExpressionAttributeValues:           vals,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return false, ErrNotFound
			}
			return false, nil
		}
		return false, fmt.Errorf("mark payment pending failed: %w", err)
	}
	return true, nil
}

func (r *DynamoOrderRepository) Settle(ctx context.Context, orderID string, paidAt time.Time) (*models.Order, bool, error) {
	key, err := r.key(orderID)
	if err != nil {
		return nil, false, err
	}

	// auto-accept only while the chef has not decided
	vals, err := marshalValues(map[string]interface{}{
		":paid":     models.PaymentStatusPaid,
		":pending":  models.OrderStatusPending,
		":accepted": models.OrderStatusAccepted,
		":at":       paidAt,
	})
	if err != nil {
		return nil, false, err
	}
	order, err := r.conditionalUpdate(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.table,
		Key:                       key,
		UpdateExpression:          sdkaws.String("SET #pay = :paid, paidAt = :at, #status = :accepted, acceptedAt = :at"),
		ConditionExpression:       sdkaws.String("attribute_exists(id) AND #status = :pending AND #pay <> :paid"),
		ExpressionAttributeNames:  map[string]string{"#pay": "paymentStatus", "#status": "orderStatus"},
		ExpressionAttributeValues: vals,
	})
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return nil, false, err
	}

	vals, err = marshalValues(map[string]interface{}{
		":paid": models.PaymentStatusPaid,
		":at":   paidAt,
	})
	if err != nil {
		return nil, false, err
	}
	order, err = r.conditionalUpdate(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.table,
		Key:                       key,
		UpdateExpression:          sdkaws.String("SET #pay = :paid, paidAt = :at"),
		ConditionExpression:       sdkaws.String("attribute_exists(id) AND #pay <> :paid"),
		ExpressionAttributeNames:  map[string]string{"#pay": "paymentStatus"},
		ExpressionAttributeValues: vals,
	})
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return nil, false, err
	}

	order, err = r.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, false, nil
}

func (r *DynamoOrderRepository) conditionalUpdate(ctx context.Context, in *dynamodb.UpdateItemInput) (*models.Order, error) {
	in.ReturnValues = types.ReturnValueAllNew
	out, err := r.client.UpdateItem(ctx, in)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("update order failed: %w", err)
	}
	return unmarshalOrder(out.Attributes)
}

func unmarshalOrder(item map[string]types.AttributeValue) (*models.Order, error) {
	var order models.Order
	if err := attributevalue.UnmarshalMap(item, &order); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &order, nil
}

func marshalValues(in map[string]interface{}) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}
