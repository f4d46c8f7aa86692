package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements OrderRepository using GORM. Guards are WHERE
// clauses; a zero RowsAffected means the guard did not hold.
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

var ownerColumns = map[models.OwnerField]string{
	models.OwnerCustomer: "customer_email",
	models.OwnerChef:     "chef_id",
}

var statusTimestampColumns = map[models.OrderStatus]string{
	models.OrderStatusAccepted:  "accepted_at",
	models.OrderStatusRejected:  "rejected_at",
	models.OrderStatusCancelled: "cancelled_at",
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.Order, error) {
	return r.find(r.db.WithContext(ctx).Where("customer_email = ?", email))
}

func (r *GormOrderRepository) FindByChefID(ctx context.Context, chefID string) ([]models.Order, error) {
	return r.find(r.db.WithContext(ctx).Where("chef_id = ?", chefID))
}

func (r *GormOrderRepository) FindAll(ctx context.Context) ([]models.Order, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *GormOrderRepository) find(query *gorm.DB) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	if err := query.Order("order_time DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *GormOrderRepository) Transition(ctx context.Context, t models.OrderTransition) (*models.Order, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status = ? AND "+ownerColumns[t.Owner.Field]+" = ?",
			t.OrderID, models.OrderStatusPending, t.Owner.Value).
		Updates(map[string]interface{}{
			"order_status":               t.To,
			statusTimestampColumns[t.To]: t.At,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, t.OrderID); err != nil {
			return nil, err
		}
		return nil, ErrConditionFailed
	}
	return r.FindByID(ctx, t.OrderID)
}

func (r *GormOrderRepository) MarkPaymentPending(ctx context.Context, orderID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, models.PaymentStatusUnpaid).
		Update("payment_status", models.PaymentStatusPending)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, orderID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *GormOrderRepository) Settle(ctx context.Context, orderID string, paidAt time.Time) (*models.Order, bool, error) {
	// auto-accept only while the chef has not decided
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status = ? AND payment_status <> ?", orderID, models.OrderStatusPending, models.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
			"paid_at":        paidAt,
			"order_status":   models.OrderStatusAccepted,
			"accepted_at":    paidAt,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	changed := result.RowsAffected > 0

	if !changed {
		result = r.db.WithContext(ctx).
			Model(&models.Order{}).
			Where("id = ? AND payment_status <> ?", orderID, models.PaymentStatusPaid).
			Updates(map[string]interface{}{
				"payment_status": models.PaymentStatusPaid,
				"paid_at":        paidAt,
			})
		if result.Error != nil {
			return nil, false, result.Error
		}
		changed = result.RowsAffected > 0
	}

	order, err := r.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, changed, nil
}
