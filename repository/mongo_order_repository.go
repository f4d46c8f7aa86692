package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{
		collection: db.Collection("orders"),
	}
}

// EnsureIndexes creates the lookup indexes used by the listing endpoints.
func (r *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customerEmail", Value: 1}, {Key: "orderTime", Value: -1}}},
		{Keys: bson.D{{Key: "chefId", Value: 1}, {Key: "orderTime", Value: -1}}},
	})
	return err
}

func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	_, err := r.collection.InsertOne(ctx, order)
	return err
}

func (r *MongoOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *MongoOrderRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.Order, error) {
	return r.find(ctx, bson.M{"customerEmail": email})
}

func (r *MongoOrderRepository) FindByChefID(ctx context.Context, chefID string) ([]models.Order, error) {
	return r.find(ctx, bson.M{"chefId": chefID})
}

func (r *MongoOrderRepository) FindAll(ctx context.Context) ([]models.Order, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoOrderRepository) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "orderTime", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *MongoOrderRepository) Transition(ctx context.Context, t models.OrderTransition) (*models.Order, error) {
	filter := bson.M{
		"_id":                 t.OrderID,
		"orderStatus":         models.OrderStatusPending,
		string(t.Owner.Field): t.Owner.Value,
	}
	update := bson.M{"$set": bson.M{
		"orderStatus":         t.To,
		t.To.TimestampField(): t.At,
	}}
	order, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.missReason(ctx, t.OrderID)
	}
	return order, err
}

func (r *MongoOrderRepository) MarkPaymentPending(ctx context.Context, orderID string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": orderID, "paymentStatus": models.PaymentStatusUnpaid},
		bson.M{"$set": bson.M{"paymentStatus": models.PaymentStatusPending}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, orderID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *MongoOrderRepository) Settle(ctx context.Context, orderID string, paidAt time.Time) (*models.Order, bool, error) {
	// auto-accept only while the chef has not decided
	order, err := r.findOneAndUpdate(ctx,
		bson.M{"_id": orderID, "orderStatus": models.OrderStatusPending, "paymentStatus": bson.M{"$ne": models.PaymentStatusPaid}},
		bson.M{"$set": bson.M{
			"paymentStatus": models.PaymentStatusPaid,
			"paidAt":        paidAt,
			"orderStatus":   models.OrderStatusAccepted,
			"acceptedAt":    paidAt,
		}},
	)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	order, err = r.findOneAndUpdate(ctx,
		bson.M{"_id": orderID, "paymentStatus": bson.M{"$ne": models.PaymentStatusPaid}},
		bson.M{"$set": bson.M{"paymentStatus": models.PaymentStatusPaid, "paidAt": paidAt}},
	)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	order, err = r.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, false, nil
}

func (r *MongoOrderRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var order models.Order
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order); err != nil {
		return nil, err
	}
	return &order, nil
}

// missReason distinguishes a missing order from a failed guard.
func (r *MongoOrderRepository) missReason(ctx context.Context, orderID string) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": orderID})
	if err != nil {
		return fmt.Errorf("count order %s: %w", orderID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}
