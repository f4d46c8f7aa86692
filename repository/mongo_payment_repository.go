package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoPaymentRepository struct {
	collection *mongo.Collection
}

func NewMongoPaymentRepository(db *mongo.Database) *MongoPaymentRepository {
	return &MongoPaymentRepository{
		collection: db.Collection("payments"),
	}
}

// EnsureIndexes creates the unique session index and the partial unique
// index that lets at most one payment per order be paid.
func (r *MongoPaymentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "gatewaySessionId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_gateway_session"),
		},
		{
			Keys: bson.D{{Key: "orderId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("ux_order_settled").
				SetPartialFilterExpression(bson.M{"status": models.PaymentRecordPaid}),
		},
		{Keys: bson.D{{Key: "customerEmail", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (r *MongoPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	_, err := r.collection.InsertOne(ctx, payment)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateSession
	}
	return err
}

func (r *MongoPaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, bson.M{"gatewaySessionId": sessionID}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *MongoPaymentRepository) FindByOrderID(ctx context.Context, orderID string) ([]models.Payment, error) {
	return r.find(ctx, bson.M{"orderId": orderID})
}

func (r *MongoPaymentRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.Payment, error) {
	return r.find(ctx, bson.M{"customerEmail": email})
}

func (r *MongoPaymentRepository) FindAll(ctx context.Context) ([]models.Payment, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoPaymentRepository) FindPaid(ctx context.Context) ([]models.Payment, error) {
	return r.find(ctx, bson.M{"status": models.PaymentRecordPaid})
}

func (r *MongoPaymentRepository) find(ctx context.Context, filter bson.M) ([]models.Payment, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	payments := make([]models.Payment, 0)
	if err = cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *MongoPaymentRepository) MarkPaid(ctx context.Context, sessionID string, paidAt time.Time) (*models.Payment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var payment models.Payment
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"gatewaySessionId": sessionID, "status": models.PaymentRecordPending},
		bson.M{"$set": bson.M{"status": models.PaymentRecordPaid, "paidAt": paidAt}},
		opts,
	).Decode(&payment)

	switch {
	case err == nil:
		return &payment, nil
	case mongo.IsDuplicateKeyError(err):
		// ux_order_settled rejected a second paid payment for the order
		return nil, ErrAlreadySettled
	case errors.Is(err, mongo.ErrNoDocuments):
		if _, findErr := r.FindBySessionID(ctx, sessionID); findErr != nil {
			return nil, findErr
		}
		return nil, ErrConditionFailed
	default:
		return nil, err
	}
}
