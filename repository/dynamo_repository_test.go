package repository_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"github.com/Pinak57/localchef-server/repository"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dynamoReply struct {
	op     string
	status int
	body   string
}

// fakeDynamo answers DynamoDB JSON calls from a fixed script, in order.
type fakeDynamo struct {
	t       *testing.T
	mu      sync.Mutex
	replies []dynamoReply
	bodies  []string
}

func (f *fakeDynamo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	f.bodies = append(f.bodies, string(body))

	op := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), "DynamoDB_20120810.")
	if len(f.replies) == 0 {
		f.t.Errorf("unexpected DynamoDB call %s", op)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	assert.Equal(f.t, next.op, op)

	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(next.status)
	_, _ = io.WriteString(w, next.body)
}

func newFakeDynamo(t *testing.T, replies ...dynamoReply) (*dynamodb.Client, *fakeDynamo) {
	t.Helper()
	fake := &fakeDynamo{t: t, replies: replies}
	srv := httptest.NewServer(fake)
	t.Cleanup(func() {
		srv.Close()
		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Empty(t, fake.replies, "scripted DynamoDB replies left unused")
	})

	client := dynamodb.NewFromConfig(sdkaws.Config{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
		BaseEndpoint: sdkaws.String(srv.URL),
		Retryer:      func() sdkaws.Retryer { return sdkaws.NopRetryer{} },
	})
	return client, fake
}

func orderItem(status models.OrderStatus, payment models.PaymentStatus) string {
	return `{"id":{"S":"order-1"},"mealId":{"S":"meal-1"},"mealName":{"S":"Biryani"},` +
		`"price":{"N":"12.5"},"customerEmail":{"S":"cust@example.com"},"chefId":{"S":"chef-1"},` +
		`"orderStatus":{"S":"` + string(status) + `"},"paymentStatus":{"S":"` + string(payment) + `"},` +
		`"orderTime":{"S":"2026-10-18T10:00:00Z"}}`
}

func paymentItem(status models.PaymentRecordStatus) string {
	return `{"id":{"S":"pay-1"},"orderId":{"S":"order-1"},"customerEmail":{"S":"cust@example.com"},` +
		`"amount":{"N":"12.5"},"currency":{"S":"usd"},"gatewaySessionId":{"S":"cs_test_1"},` +
		`"status":{"S":"` + string(status) + `"},"createdAt":{"S":"2026-10-18T10:00:00Z"}}`
}

func ok(op, body string) dynamoReply {
	return dynamoReply{op: op, status: http.StatusOK, body: body}
}

func conditionFailed(op, oldItem string) dynamoReply {
	body := `{"__type":"com.amazonaws.dynamodb.v20120810#ConditionalCheckFailedException","message":"The conditional request failed"`
	if oldItem != "" {
		body += `,"Item":` + oldItem
	}
	return dynamoReply{op: op, status: http.StatusBadRequest, body: body + `}`}
}

func transactionCancelled(codes ...string) dynamoReply {
	reasons := make([]string, 0, len(codes))
	for _, c := range codes {
		reasons = append(reasons, `{"Code":"`+c+`"}`)
	}
	return dynamoReply{
		op:     "TransactWriteItems",
		status: http.StatusBadRequest,
		body: `{"__type":"com.amazonaws.dynamodb.v20120810#TransactionCanceledException",` +
			`"Message":"Transaction cancelled","CancellationReasons":[` + strings.Join(reasons, ",") + `]}`,
	}
}

func TestDynamoOrderRepository_Transition(t *testing.T) {
	transition := models.OrderTransition{
		OrderID: "order-1",
		Owner:   models.Owner{Field: models.OwnerCustomer, Value: "cust@example.com"},
		To:      models.OrderStatusCancelled,
		At:      time.Now(),
	}

	t.Run("pending order is cancelled", func(t *testing.T) {
		client, _ := newFakeDynamo(t, ok("UpdateItem", `{"Attributes":`+orderItem(models.OrderStatusCancelled, models.PaymentStatusUnpaid)+`}`))
		repo := repository.NewDynamoOrderRepository(client, "orders")

		order, err := repo.Transition(context.Background(), transition)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, order.OrderStatus)
	})

	t.Run("guard miss on existing order", func(t *testing.T) {
		client, _ := newFakeDynamo(t, conditionFailed("UpdateItem", orderItem(models.OrderStatusAccepted, models.PaymentStatusUnpaid)))
		repo := repository.NewDynamoOrderRepository(client, "orders")

		_, err := repo.Transition(context.Background(), transition)
		assert.ErrorIs(t, err, repository.ErrConditionFailed)
	})

	t.Run("missing order", func(t *testing.T) {
		client, _ := newFakeDynamo(t, conditionFailed("UpdateItem", ""))
		repo := repository.NewDynamoOrderRepository(client, "orders")

		_, err := repo.Transition(context.Background(), transition)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestDynamoOrderRepository_Settle(t *testing.T) {
	paidAt := time.Now()

	t.Run("pending order is paid and accepted", func(t *testing.T) {
		client, fake := newFakeDynamo(t, ok("UpdateItem", `{"Attributes":`+orderItem(models.OrderStatusAccepted, models.PaymentStatusPaid)+`}`))
		repo := repository.NewDynamoOrderRepository(client, "orders")

		order, changed, err := repo.Settle(context.Background(), "order-1", paidAt)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.OrderStatusAccepted, order.OrderStatus)
		assert.Contains(t, fake.bodies[0], "#status = :pending")
	})

	t.Run("rejected order is paid without reopening", func(t *testing.T) {
		client, fake := newFakeDynamo(t,
			conditionFailed("UpdateItem", ""),
			ok("UpdateItem", `{"Attributes":`+orderItem(models.OrderStatusRejected, models.PaymentStatusPaid)+`}`),
		)
		repo := repository.NewDynamoOrderRepository(client, "orders")

		order, changed, err := repo.Settle(context.Background(), "order-1", paidAt)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.OrderStatusRejected, order.OrderStatus)
		assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
		assert.NotContains(t, fake.bodies[1], ":accepted")
	})

	t.Run("already paid order is unchanged", func(t *testing.T) {
		client, _ := newFakeDynamo(t,
			conditionFailed("UpdateItem", ""),
			conditionFailed("UpdateItem", ""),
			ok("GetItem", `{"Item":`+orderItem(models.OrderStatusAccepted, models.PaymentStatusPaid)+`}`),
		)
		repo := repository.NewDynamoOrderRepository(client, "orders")

		order, changed, err := repo.Settle(context.Background(), "order-1", paidAt)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	})

	t.Run("missing order", func(t *testing.T) {
		client, _ := newFakeDynamo(t,
			conditionFailed("UpdateItem", ""),
			conditionFailed("UpdateItem", ""),
			ok("GetItem", `{}`),
		)
		repo := repository.NewDynamoOrderRepository(client, "orders")

		_, _, err := repo.Settle(context.Background(), "order-1", paidAt)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestDynamoPaymentRepository_MarkPaid(t *testing.T) {
	paidAt := time.Now()
	pending := ok("GetItem", `{"Item":`+paymentItem(models.PaymentRecordPending)+`}`)

	t.Run("pending payment claims the settlement marker", func(t *testing.T) {
		client, fake := newFakeDynamo(t, pending, ok("TransactWriteItems", `{}`))
		repo := repository.NewDynamoPaymentRepository(client, "payments")

		payment, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentRecordPaid, payment.Status)
		require.NotNil(t, payment.PaidAt)
		assert.Contains(t, fake.bodies[1], "settled#order-1")
	})

	t.Run("sibling payment already paid", func(t *testing.T) {
		client, _ := newFakeDynamo(t, pending, transactionCancelled("None", "ConditionalCheckFailed"))
		repo := repository.NewDynamoPaymentRepository(client, "payments")

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(t, err, repository.ErrAlreadySettled)
	})

	t.Run("payment paid concurrently", func(t *testing.T) {
		client, _ := newFakeDynamo(t, pending, transactionCancelled("ConditionalCheckFailed", "None"))
		repo := repository.NewDynamoPaymentRepository(client, "payments")

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(t, err, repository.ErrConditionFailed)
	})

	t.Run("payment no longer pending", func(t *testing.T) {
		client, _ := newFakeDynamo(t, ok("GetItem", `{"Item":`+paymentItem(models.PaymentRecordPaid)+`}`))
		repo := repository.NewDynamoPaymentRepository(client, "payments")

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(t, err, repository.ErrConditionFailed)
	})

	t.Run("unknown session", func(t *testing.T) {
		client, _ := newFakeDynamo(t, ok("GetItem", `{}`))
		repo := repository.NewDynamoPaymentRepository(client, "payments")

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
