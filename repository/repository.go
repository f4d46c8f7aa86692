package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Pinak57/localchef-server/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional update found the
	// record but its guard (owner, expected status) no longer held.
	ErrConditionFailed = errors.New("conditional update did not match")
	// ErrDuplicateSession is returned when a gateway session id is already recorded.
	ErrDuplicateSession = errors.New("gateway session already recorded")
	// ErrAlreadySettled is returned when another payment for the same order is already paid.
	ErrAlreadySettled = errors.New("order already has a settled payment")
)

// OrderRepository stores orders. Every mutating method is a single-document
// conditional update; no method reads and then writes without a guard.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByCustomerEmail(ctx context.Context, email string) ([]models.Order, error)
	FindByChefID(ctx context.Context, chefID string) ([]models.Order, error)
	FindAll(ctx context.Context) ([]models.Order, error)

	// Transition applies t only while the order is pending and owned by
	// t.Owner, returning the updated order or ErrConditionFailed.
	Transition(ctx context.Context, t models.OrderTransition) (*models.Order, error)

	// MarkPaymentPending moves paymentStatus unpaid -> pending. It reports
	// false when the order was not unpaid.
	MarkPaymentPending(ctx context.Context, orderID string) (bool, error)

	// Settle sets paymentStatus=paid and paidAt, and orderStatus=accepted
	// with acceptedAt only if the order is still pending. It reports whether
	// anything changed; an already-paid order is returned unchanged.
	Settle(ctx context.Context, orderID string, paidAt time.Time) (*models.Order, bool, error)
}

// PaymentRepository stores checkout attempts.
type PaymentRepository interface {
	// Create fails with ErrDuplicateSession if the session id already exists.
	Create(ctx context.Context, payment *models.Payment) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) ([]models.Payment, error)
	FindByCustomerEmail(ctx context.Context, email string) ([]models.Payment, error)
	FindAll(ctx context.Context) ([]models.Payment, error)
	FindPaid(ctx context.Context) ([]models.Payment, error)

	// MarkPaid moves the payment pending -> paid. It fails with
	// ErrConditionFailed when the payment is not pending and with
	// ErrAlreadySettled when a sibling payment of the order is paid.
	MarkPaid(ctx context.Context, sessionID string, paidAt time.Time) (*models.Payment, error)
}
