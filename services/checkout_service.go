package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/Pinak57/localchef-server/models"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/Pinak57/localchef-server/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateCheckoutRequest struct {
	OrderID  string  `json:"orderId" validate:"required"`
	Amount   float64 `json:"amount" validate:"gt=0"`
	Currency string  `json:"currency"`
}

// RetryPolicy bounds gateway session creation.
type RetryPolicy struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		AttemptTimeout: 10 * time.Second,
		MaxAttempts:    3,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

type CheckoutService struct {
	gateway      PaymentGateway
	orders       repository.OrderRepository
	payments     repository.PaymentRepository
	validate     *validator.Validate
	retry        RetryPolicy
	metrics      aws_pkg.MetricsRecorder
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

func NewCheckoutService(
	gateway PaymentGateway,
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	retry RetryPolicy,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
	storeTimeout time.Duration,
) *CheckoutService {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if retry.AttemptTimeout <= 0 {
		retry.AttemptTimeout = DefaultRetryPolicy().AttemptTimeout
	}
	return &CheckoutService{
		gateway:      gateway,
		orders:       orders,
		payments:     payments,
		validate:     validator.New(),
		retry:        retry,
		metrics:      metrics,
		logger:       logger,
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// toCents converts a major-unit amount to the gateway's minor unit.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateCheckout opens a hosted checkout session for the customer's order and
// records a pending Payment for it. Nothing is written if the gateway fails.
func (s *CheckoutService) CreateCheckout(ctx context.Context, customer models.Identity, req CreateCheckoutRequest) (*models.CheckoutSession, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "Invalid checkout request: "+err.Error(), err)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	order, err := s.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerEmail != customer.Email {
		return nil, apperrors.Forbidden("Not allowed to pay for this order")
	}
	if !order.Payable() {
		return nil, apperrors.InvalidState("Order cannot be paid in its current state")
	}
	if toCents(req.Amount) != toCents(order.Price) {
		return nil, apperrors.Validation("Amount does not match order price")
	}

	cs, err := s.createSession(ctx, CheckoutRequest{
		OrderID:        order.ID,
		MealName:       order.MealName,
		CustomerEmail:  order.CustomerEmail,
		AmountCents:    toCents(order.Price),
		Currency:       currency,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		recordCount(ctx, s.metrics, aws_pkg.MetricCheckoutsFailed, nil)
		s.logger.Error("Checkout session creation failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, apperrors.Gateway("Payment gateway unavailable", err)
	}

	payment := &models.Payment{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		CustomerEmail:    order.CustomerEmail,
		Amount:           order.Price,
		Currency:         currency,
		GatewaySessionID: cs.SessionID,
		Status:           models.PaymentRecordPending,
		CreatedAt:        s.now(),
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.payments.Create(storeCtx, payment); err != nil {
		s.logger.Error("Failed to record payment",
			zap.String("order_id", order.ID),
			zap.String("session_id", cs.SessionID),
			zap.Error(err),
		)
		return nil, apperrors.Store("Failed to record payment", err)
	}

	if _, err := s.orders.MarkPaymentPending(storeCtx, order.ID); err != nil {
		// the Payment record is what settlement keys on
		s.logger.Warn("Failed to mark order payment pending", zap.String("order_id", order.ID), zap.Error(err))
	}

	s.logger.Info("Checkout session created",
		zap.String("order_id", order.ID),
		zap.String("payment_id", payment.ID),
		zap.String("session_id", cs.SessionID),
	)
	recordCount(ctx, s.metrics, aws_pkg.MetricCheckoutsCreated, nil)
	return cs, nil
}

func (s *CheckoutService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	order, err := s.orders.FindByID(storeCtx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperrors.Store("Failed to load order", err)
	}
	return order, nil
}

// createSession calls the gateway with a per-attempt timeout and exponential
// backoff. All attempts share the idempotency key in req.
func (s *CheckoutService) createSession(ctx context.Context, req CheckoutRequest) (*models.CheckoutSession, error) {
	var lastErr error
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retry.delay(attempt - 1)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.retry.AttemptTimeout)
		cs, err := s.gateway.CreateCheckoutSession(attemptCtx, req)
		cancel()
		if err == nil {
			return cs, nil
		}
		lastErr = err
		s.logger.Warn("Checkout session attempt failed",
			zap.String("order_id", req.OrderID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if errors.Is(err, ErrGatewayRejected) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
