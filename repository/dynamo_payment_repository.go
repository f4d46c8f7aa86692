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
	paymentsByOrderIndex    = "orderId-index"
	paymentsByCustomerIndex = "customerEmail-index"

	// settlementMarkerPrefix keys the item that claims an order's single paid
	// slot. Markers carry no orderId so they stay out of the GSIs.
	settlementMarkerPrefix = "settled#"
)

// DynamoPaymentRepository implements PaymentRepository using DynamoDB. The
// table is keyed by gatewaySessionId.
type DynamoPaymentRepository struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoPaymentRepository(client *dynamodb.Client, table string) *DynamoPaymentRepository {
	return &DynamoPaymentRepository{client: client, table: table}
}

type settlementMarker struct {
	GatewaySessionID string    `dynamodbav:"gatewaySessionId"`
	PaymentID        string    `dynamodbav:"paymentId"`
	SettledSession   string    `dynamodbav:"settledSession"`
	SettledAt        time.Time `dynamodbav:"settledAt"`
}

func (r *DynamoPaymentRepository) key(sessionID string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"gatewaySessionId": sessionID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

func (r *DynamoPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	item, err := attributevalue.MarshalMap(payment)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &r.table,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(gatewaySessionId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (r *DynamoPaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	key, err := r.key(sessionID)
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
	var payment models.Payment
	if err := attributevalue.UnmarshalMap(out.Item, &payment); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if payment.OrderID == "" {
		// settlement marker, not a payment
		return nil, ErrNotFound
	}
	return &payment, nil
}

func (r *DynamoPaymentRepository) FindByOrderID(ctx context.Context, orderID string) ([]models.Payment, error) {
	return r.query(ctx, paymentsByOrderIndex, "orderId", orderID)
}

func (r *DynamoPaymentRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.Payment, error) {
	return r.query(ctx, paymentsByCustomerIndex, "customerEmail", email)
}

func (r *DynamoPaymentRepository) query(ctx context.Context, index, attr, value string) ([]models.Payment, error) {
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

	payments := make([]models.Payment, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Query %s failed: %w", index, err)
		}
		var batch []models.Payment
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		payments = append(payments, batch...)
	}
	sortPayments(payments)
	return payments, nil
}

func (r *DynamoPaymentRepository) FindAll(ctx context.Context) ([]models.Payment, error) {
	return r.scan(ctx, "attribute_exists(orderId)", nil)
}

func (r *DynamoPaymentRepository) FindPaid(ctx context.Context) ([]models.Payment, error) {
	paidAV, err := attributevalue.Marshal(models.PaymentRecordPaid)
	if err != nil {
		return nil, fmt.Errorf("marshal status: %w", err)
	}
	return r.scan(ctx, "attribute_exists(orderId) AND #status = :paid", map[string]types.AttributeValue{":paid": paidAV})
}

func (r *DynamoPaymentRepository) scan(ctx context.Context, filter string, vals map[string]types.AttributeValue) ([]models.Payment, error) {
	input := &dynamodb.ScanInput{
		TableName:        &r.table,
		FilterExpression: sdkaws.String(filter),
	}
	if len(vals) > 0 {
		input.ExpressionAttributeValues = vals
		input.ExpressionAttributeNames = map[string]string{"#status": "status"}
	}
	paginator := dynamodb.NewScanPaginator(r.client, input)

	payments := make([]models.Payment, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Scan failed: %w", err)
		}
		var batch []models.Payment
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		payments = append(payments, batch...)
	}
	sortPayments(payments)
	return payments, nil
}

func sortPayments(payments []models.Payment) {
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.After(payments[j].CreatedAt) })
}

// MarkPaid flips the payment to paid and claims the order's settlement
// marker in one transaction.
func (r *DynamoPaymentRepository) MarkPaid(ctx context.Context, sessionID string, paidAt time.Time) (*models.Payment, error) {
	current, err := r.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.PaymentRecordPending {
		return nil, ErrConditionFailed
	}

	key, err := r.key(sessionID)
	if err != nil {
		return nil, err
	}
	vals, err := marshalValues(map[string]interface{}{
		":pending": models.PaymentRecordPending,
		":paid":    models.PaymentRecordPaid,
		":at":      paidAt,
	})
	if err != nil {
		return nil, err
	}
	marker, err := attributevalue.MarshalMap(settlementMarker{
		GatewaySessionID: settlementMarkerPrefix + current.OrderID,
		PaymentID:        current.ID,
		SettledSession:   sessionID,
		SettledAt:        paidAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal settlement marker: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 &r.table,
				Key:                       key,
				UpdateExpression:          sdkaws.String("SET #status = :paid, paidAt = :at"),
				ConditionExpression:       sdkaws.String("#status = :pending"),
				ExpressionAttributeNames:  map[string]string{"#status": "status"},
				ExpressionAttributeValues: vals,
			}},
			{Put: &types.Put{
				TableName:           &r.table,
				Item:                marker,
				ConditionExpression: sdkaws.String("attribute_not_exists(gatewaySessionId)"),
			}},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return nil, cancellationReason(tce)
		}
		return nil, fmt.Errorf("settle payment failed: %w", err)
	}

	current.Status = models.PaymentRecordPaid
	current.PaidAt = &paidAt
	return current, nil
}

// cancellationReason maps the failed transaction item to a repository error.
// Index 0 is the payment update, index 1 the settlement marker.
func cancellationReason(tce *types.TransactionCanceledException) error {
	reasons := tce.CancellationReasons
	if len(reasons) > 0 && sdkaws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
		return ErrConditionFailed
	}
	if len(reasons) > 1 && sdkaws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
		return ErrAlreadySettled
	}
	return fmt.Errorf("settle payment transaction cancelled: %w", tce)
}
