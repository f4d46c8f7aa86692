package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"github.com/Pinak57/localchef-server/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const (
	ordersNS   = "db.orders"
	paymentsNS = "db.payments"
)

func orderDoc(status models.OrderStatus, payment models.PaymentStatus) bson.D {
	return bson.D{
		{Key: "_id", Value: "order-1"},
		{Key: "mealId", Value: "meal-1"},
		{Key: "mealName", Value: "Biryani"},
		{Key: "price", Value: 12.5},
		{Key: "customerEmail", Value: "cust@example.com"},
		{Key: "chefId", Value: "chef-1"},
		{Key: "orderStatus", Value: string(status)},
		{Key: "paymentStatus", Value: string(payment)},
		{Key: "orderTime", Value: time.Now().UTC()},
	}
}

func paymentDoc(status models.PaymentRecordStatus) bson.D {
	return bson.D{
		{Key: "_id", Value: "pay-1"},
		{Key: "orderId", Value: "order-1"},
		{Key: "customerEmail", Value: "cust@example.com"},
		{Key: "amount", Value: 12.5},
		{Key: "currency", Value: "usd"},
		{Key: "gatewaySessionId", Value: "cs_test_1"},
		{Key: "status", Value: string(status)},
		{Key: "createdAt", Value: time.Now().UTC()},
	}
}

// noMatch is a findAndModify reply whose guard matched nothing.
func noMatch() bson.D {
	return mtest.CreateSuccessResponse()
}

func modified(doc bson.D) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc})
}

func duplicateKey() bson.D {
	return mtest.CreateCommandErrorResponse(mtest.CommandError{
		Code:    11000,
		Name:    "DuplicateKey",
		Message: "E11000 duplicate key error collection: db.payments index: ux_order_settled",
	})
}

func TestMongoOrderRepository_Transition(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	transition := models.OrderTransition{
		OrderID: "order-1",
		Owner:   models.Owner{Field: models.OwnerChef, Value: "chef-1"},
		To:      models.OrderStatusAccepted,
		At:      time.Now(),
	}

	mt.Run("pending order is accepted", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(modified(orderDoc(models.OrderStatusAccepted, models.PaymentStatusUnpaid)))

		order, err := repo.Transition(context.Background(), transition)
		require.NoError(mt, err)
		assert.Equal(mt, models.OrderStatusAccepted, order.OrderStatus)
	})

	mt.Run("guard miss on existing order", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			mtest.CreateCursorResponse(0, ordersNS, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		_, err := repo.Transition(context.Background(), transition)
		assert.ErrorIs(mt, err, repository.ErrConditionFailed)
	})

	mt.Run("missing order", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			mtest.CreateCursorResponse(0, ordersNS, mtest.FirstBatch),
		)

		_, err := repo.Transition(context.Background(), transition)
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})
}

func TestMongoOrderRepository_Settle(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	paidAt := time.Now()

	mt.Run("pending order is paid and accepted", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(modified(orderDoc(models.OrderStatusAccepted, models.PaymentStatusPaid)))

		order, changed, err := repo.Settle(context.Background(), "order-1", paidAt)
		require.NoError(mt, err)
		assert.True(mt, changed)
		assert.Equal(mt, models.OrderStatusAccepted, order.OrderStatus)
		assert.Equal(mt, models.PaymentStatusPaid, order.PaymentStatus)
	})

	mt.Run("rejected order is paid without reopening", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			modified(orderDoc(models.OrderStatusRejected, models.PaymentStatusPaid)),
		)

		order, changed, err := repo.Settle(context.Background(), "order-1", paidAt)
		require.NoError(mt, err)
		assert.True(mt, changed)
		assert.Equal(mt, models.OrderStatusRejected, order.OrderStatus)
		assert.Equal(mt, models.PaymentStatusPaid, order.PaymentStatus)
	})

	mt.Run("already paid order is unchanged", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			noMatch(),
			mtest.CreateCursorResponse(0, ordersNS, mtest.FirstBatch, orderDoc(models.OrderStatusAccepted, models.PaymentStatusPaid)),
		)

		order, changed, err := repo.Settle(context.Background(), "order-1", paidAt)
		require.NoError(mt, err)
		assert.False(mt, changed)
		assert.Equal(mt, models.PaymentStatusPaid, order.PaymentStatus)
	})

	mt.Run("missing order", func(mt *mtest.T) {
		repo := repository.NewMongoOrderRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			noMatch(),
			mtest.CreateCursorResponse(0, ordersNS, mtest.FirstBatch),
		)

		_, _, err := repo.Settle(context.Background(), "order-1", paidAt)
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})
}

func TestMongoPaymentRepository_MarkPaid(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	paidAt := time.Now()

	mt.Run("pending payment is paid", func(mt *mtest.T) {
		repo := repository.NewMongoPaymentRepository(mt.DB)
		mt.AddMockResponses(modified(paymentDoc(models.PaymentRecordPaid)))

		payment, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		require.NoError(mt, err)
		assert.Equal(mt, models.PaymentRecordPaid, payment.Status)
	})

	mt.Run("sibling payment already paid", func(mt *mtest.T) {
		repo := repository.NewMongoPaymentRepository(mt.DB)
		mt.AddMockResponses(duplicateKey())

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(mt, err, repository.ErrAlreadySettled)
	})

	mt.Run("payment no longer pending", func(mt *mtest.T) {
		repo := repository.NewMongoPaymentRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			mtest.CreateCursorResponse(0, paymentsNS, mtest.FirstBatch, paymentDoc(models.PaymentRecordPaid)),
		)

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(mt, err, repository.ErrConditionFailed)
	})

	mt.Run("unknown session", func(mt *mtest.T) {
		repo := repository.NewMongoPaymentRepository(mt.DB)
		mt.AddMockResponses(
			noMatch(),
			mtest.CreateCursorResponse(0, paymentsNS, mtest.FirstBatch),
		)

		_, err := repo.MarkPaid(context.Background(), "cs_test_1", paidAt)
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})
}

func TestMongoPaymentRepository_CreateDuplicateSession(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("session recorded twice", func(mt *mtest.T) {
		repo := repository.NewMongoPaymentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: db.payments index: ux_gateway_session",
		}))

		err := repo.Create(context.Background(), &models.Payment{
			ID:               "pay-2",
			OrderID:          "order-1",
			GatewaySessionID: "cs_test_1",
			Status:           models.PaymentRecordPending,
			CreatedAt:        time.Now(),
		})
		assert.ErrorIs(mt, err, repository.ErrDuplicateSession)
	})
}
