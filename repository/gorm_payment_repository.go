package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements PaymentRepository using GORM on Postgres.
// A partial unique index on payments(order_id) WHERE status = 'paid' rejects
// a second settlement for the same order.
type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// MigrateGorm creates the orders and payments tables and the settlement index.
func MigrateGorm(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Order{}, &models.Payment{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_order_settled ON payments (order_id) WHERE status = 'paid'`).Error
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	err := r.db.WithContext(ctx).Create(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSession
	}
	return err
}

func (r *GormPaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("gateway_session_id = ?", sessionID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID string) ([]models.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

func (r *GormPaymentRepository) FindByCustomerEmail(ctx context.Context, email string) ([]models.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("customer_email = ?", email))
}

func (r *GormPaymentRepository) FindAll(ctx context.Context) ([]models.Payment, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *GormPaymentRepository) FindPaid(ctx context.Context) ([]models.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("status = ?", models.PaymentRecordPaid))
}

func (r *GormPaymentRepository) find(query *gorm.DB) ([]models.Payment, error) {
	payments := make([]models.Payment, 0)
	if err := query.Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *GormPaymentRepository) MarkPaid(ctx context.Context, sessionID string, paidAt time.Time) (*models.Payment, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("gateway_session_id = ? AND status = ?", sessionID, models.PaymentRecordPending).
		Updates(map[string]interface{}{
			"status":  models.PaymentRecordPaid,
			"paid_at": paidAt,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadySettled
		}
		return nil, result.Error
	}

	payment, err := r.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, ErrConditionFailed
	}
	return payment, nil
}
