package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Pinak57/localchef-server/models"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/Pinak57/localchef-server/repository"
	"go.uber.org/zap"
)

// NotificationResult says what the handler did with a verified notification.
type NotificationResult string

const (
	ResultSettled   NotificationResult = "settled"
	ResultDuplicate NotificationResult = "duplicate"
	ResultDiscarded NotificationResult = "discarded"
	ResultIgnored   NotificationResult = "ignored"
	// ResultQueued means the payment is paid and the order write was handed
	// to the settlement retry queue.
	ResultQueued NotificationResult = "queued"
)

// EventDeduper remembers fully processed gateway event ids.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type ReconciliationService struct {
	gateway      PaymentGateway
	payments     repository.PaymentRepository
	orders       repository.OrderRepository
	retryQueue   aws_pkg.QueueSender
	archiver     aws_pkg.ObjectArchiver
	deduper      EventDeduper
	publisher    aws_pkg.SNSPublisher
	topicArn     string
	metrics      aws_pkg.MetricsRecorder
	logger       *zap.Logger
	storeTimeout time.Duration

	orderAttempts   int
	orderRetryDelay time.Duration
	now             func() time.Time
}

// ReconciliationDeps groups the optional collaborators; nil fields are skipped.
type ReconciliationDeps struct {
	RetryQueue aws_pkg.QueueSender
	Archiver   aws_pkg.ObjectArchiver
	Deduper    EventDeduper
	Publisher  aws_pkg.SNSPublisher
	TopicArn   string
	Metrics    aws_pkg.MetricsRecorder
}

func NewReconciliationService(
	gateway PaymentGateway,
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	deps ReconciliationDeps,
	logger *zap.Logger,
	storeTimeout time.Duration,
) *ReconciliationService {
	return &ReconciliationService{
		gateway:         gateway,
		payments:        payments,
		orders:          orders,
		retryQueue:      deps.RetryQueue,
		archiver:        deps.Archiver,
		deduper:         deps.Deduper,
		publisher:       deps.Publisher,
		topicArn:        deps.TopicArn,
		metrics:         deps.Metrics,
		logger:          logger,
		storeTimeout:    storeTimeout,
		orderAttempts:   3,
		orderRetryDelay: 100 * time.Millisecond,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// HandleNotification verifies and applies one gateway notification. Only a
// bad signature or a store failure that could not be queued for retry is
// returned as an error; every other outcome is a NotificationResult.
func (s *ReconciliationService) HandleNotification(ctx context.Context, payload []byte, signatureHeader string) (NotificationResult, error) {
	event, err := s.gateway.VerifyNotification(payload, signatureHeader)
	if err != nil {
		recordCount(ctx, s.metrics, aws_pkg.MetricWebhookRejected, nil)
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return "", apperrors.Signature(err)
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if s.seen(ctx, event.ID) {
		recordCount(ctx, s.metrics, aws_pkg.MetricWebhookDuplicates, nil)
		log.Info("Event already processed; skipping")
		return ResultDuplicate, nil
	}
	s.archive(ctx, event.ID, payload)

	if event.Type != EventCheckoutCompleted {
		log.Debug("Unhandled event type")
		s.remember(ctx, event.ID)
		return ResultIgnored, nil
	}

	result, err := s.settle(ctx, event, log)
	if err != nil {
		return "", err
	}
	s.remember(ctx, event.ID)
	return result, nil
}

func (s *ReconciliationService) settle(ctx context.Context, event *GatewayEvent, log *zap.Logger) (NotificationResult, error) {
	log = log.With(zap.String("session_id", event.SessionID))

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	payment, err := s.payments.FindBySessionID(storeCtx, event.SessionID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("No payment for checkout session; discarding")
		return ResultDiscarded, nil
	}
	if err != nil {
		log.Error("Failed to load payment", zap.Error(err))
		return "", apperrors.Store("Failed to load payment", err)
	}

	if payment.Status == models.PaymentRecordPaid {
		recordCount(ctx, s.metrics, aws_pkg.MetricWebhookDuplicates, nil)
		log.Info("Payment already paid; replaying order write", zap.String("payment_id", payment.ID))
		return s.settleOrderResult(ctx, payment, ResultDuplicate)
	}

	// phase 1: the Payment record decides whether settlement happened
	storeCtx, cancel = withStoreTimeout(ctx, s.storeTimeout)
	paid, err := s.payments.MarkPaid(storeCtx, event.SessionID, s.now())
	cancel()
	switch {
	case errors.Is(err, repository.ErrConditionFailed):
		// a concurrent delivery won phase 1
		recordCount(ctx, s.metrics, aws_pkg.MetricWebhookDuplicates, nil)
		storeCtx, cancel = withStoreTimeout(ctx, s.storeTimeout)
		paid, err = s.payments.FindBySessionID(storeCtx, event.SessionID)
		cancel()
		if err != nil {
			return "", apperrors.Store("Failed to load payment", err)
		}
		return s.settleOrderResult(ctx, paid, ResultDuplicate)
	case errors.Is(err, repository.ErrAlreadySettled):
		recordCount(ctx, s.metrics, aws_pkg.MetricSettlementConflicts, nil)
		log.Error("Order already settled by another payment; manual refund required",
			zap.String("order_id", payment.OrderID),
			zap.String("payment_id", payment.ID),
		)
		return ResultDiscarded, nil
	case err != nil:
		log.Error("Failed to mark payment paid", zap.Error(err))
		return "", apperrors.Store("Failed to settle payment", err)
	}

	// phase 2
	result, err := s.settleOrderResult(ctx, paid, ResultSettled)
	if err != nil {
		return "", err
	}
	log.Info("Payment settled", zap.String("order_id", paid.OrderID), zap.String("payment_id", paid.ID),
		zap.String("result", string(result)))
	return result, nil
}

// settleOrderResult runs settleOrder and reports done on success or
// ResultQueued when the order write was handed to the retry queue.
func (s *ReconciliationService) settleOrderResult(ctx context.Context, payment *models.Payment, done NotificationResult) (NotificationResult, error) {
	queued, err := s.settleOrder(ctx, payment)
	if err != nil {
		return "", err
	}
	if queued {
		return ResultQueued, nil
	}
	return done, nil
}

// settleOrder replays the order half of a settlement for a paid payment with
// bounded in-process retries, then hands off to the retry queue. A successful
// hand-off is not an error; without a queue the last store error is returned.
func (s *ReconciliationService) settleOrder(ctx context.Context, payment *models.Payment) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.orderAttempts; attempt++ {
		if attempt > 0 {
			recordCount(ctx, s.metrics, aws_pkg.MetricSettlementRetries, nil)
			select {
			case <-ctx.Done():
				if s.enqueueRetry(ctx, payment) {
					return true, nil
				}
				return false, apperrors.Store("Failed to settle order", ctx.Err())
			case <-time.After(s.orderRetryDelay << (attempt - 1)):
			}
		}
		lastErr = s.settleOrderOnce(ctx, payment)
		if lastErr == nil {
			return false, nil
		}
		s.logger.Warn("Order settlement attempt failed",
			zap.String("order_id", payment.OrderID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	if s.enqueueRetry(ctx, payment) {
		return true, nil
	}
	return false, apperrors.Store("Failed to settle order", lastErr)
}

func (s *ReconciliationService) settleOrderOnce(ctx context.Context, payment *models.Payment) error {
	paidAt := s.now()
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	order, changed, err := s.orders.Settle(storeCtx, payment.OrderID, paidAt)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Paid payment references missing order",
			zap.String("order_id", payment.OrderID),
			zap.String("payment_id", payment.ID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.logger.Info("Order marked paid",
		zap.String("order_id", order.ID),
		zap.String("order_status", string(order.OrderStatus)),
	)
	recordCount(ctx, s.metrics, aws_pkg.MetricPaymentSucceeded, nil)
	publishEvent(ctx, s.publisher, s.topicArn, "payment_succeeded", models.PaymentEvent{
		Type:      "payment_succeeded",
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		SessionID: payment.GatewaySessionID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Timestamp: paidAt,
	}, s.logger)
	return nil
}

// enqueueRetry reports whether the retry message was accepted by the queue.
func (s *ReconciliationService) enqueueRetry(ctx context.Context, payment *models.Payment) bool {
	if s.retryQueue == nil {
		return false
	}
	msg := models.SettlementRetry{
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		SessionID: payment.GatewaySessionID,
	}
	if payment.PaidAt != nil {
		msg.PaidAt = *payment.PaidAt
	}
	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal settlement retry", zap.Error(err))
		return false
	}
	if err := s.retryQueue.Send(context.WithoutCancel(ctx), body); err != nil {
		s.logger.Error("Failed to enqueue settlement retry", zap.String("order_id", payment.OrderID), zap.Error(err))
		return false
	}
	s.logger.Info("Settlement retry enqueued", zap.String("order_id", payment.OrderID))
	return true
}

// ReplaySettlement re-applies the order write for a settlement retry message.
// Messages for payments that are not paid, or whose order id disagrees with
// the payment, are dropped.
func (s *ReconciliationService) ReplaySettlement(ctx context.Context, retry models.SettlementRetry) error {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	payment, err := s.payments.FindBySessionID(storeCtx, retry.SessionID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Settlement retry for unknown session", zap.String("session_id", retry.SessionID))
		return nil
	}
	if err != nil {
		return apperrors.Store("Failed to load payment", err)
	}
	if payment.Status != models.PaymentRecordPaid {
		s.logger.Warn("Settlement retry for unpaid payment", zap.String("payment_id", payment.ID))
		return nil
	}
	if retry.OrderID != "" && retry.OrderID != payment.OrderID {
		s.logger.Warn("Settlement retry order does not match payment",
			zap.String("retry_order_id", retry.OrderID),
			zap.String("order_id", payment.OrderID),
			zap.String("payment_id", payment.ID),
		)
		return nil
	}
	if err := s.settleOrderOnce(ctx, payment); err != nil {
		return apperrors.Store("Failed to settle order", err)
	}
	return nil
}

// ReplayAllPaid re-applies the order write for every paid payment and
// reports how many orders changed.
func (s *ReconciliationService) ReplayAllPaid(ctx context.Context) (int, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	paid, err := s.payments.FindPaid(storeCtx)
	cancel()
	if err != nil {
		return 0, apperrors.Store("Failed to list paid payments", err)
	}

	repaired := 0
	for i := range paid {
		p := &paid[i]
		storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
		before, err := s.orders.FindByID(storeCtx, p.OrderID)
		cancel()
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return repaired, apperrors.Store("Failed to load order", err)
		}
		if before.PaymentStatus == models.PaymentStatusPaid {
			continue
		}
		if err := s.settleOrderOnce(ctx, p); err != nil {
			return repaired, apperrors.Store(fmt.Sprintf("Failed to settle order %s", p.OrderID), err)
		}
		repaired++
	}
	return repaired, nil
}

// Settlement returns an order with all of its payment attempts.
func (s *ReconciliationService) Settlement(ctx context.Context, orderID string) (*models.Order, []models.Payment, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	order, err := s.orders.FindByID(storeCtx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, nil, apperrors.Store("Failed to load order", err)
	}
	payments, err := s.payments.FindByOrderID(storeCtx, orderID)
	if err != nil {
		return nil, nil, apperrors.Store("Failed to load payments", err)
	}
	return order, payments, nil
}

func (s *ReconciliationService) ListPayments(ctx context.Context, customerEmail string) ([]models.Payment, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	var (
		payments []models.Payment
		err      error
	)
	if customerEmail == "" {
		payments, err = s.payments.FindAll(storeCtx)
	} else {
		payments, err = s.payments.FindByCustomerEmail(storeCtx, customerEmail)
	}
	if err != nil {
		return nil, apperrors.Store("Failed to fetch payments", err)
	}
	return payments, nil
}

func (s *ReconciliationService) seen(ctx context.Context, eventID string) bool {
	if s.deduper == nil || eventID == "" {
		return false
	}
	ok, err := s.deduper.Seen(ctx, eventID)
	if err != nil {
		s.logger.Warn("Event dedupe lookup failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return ok
}

func (s *ReconciliationService) remember(ctx context.Context, eventID string) {
	if s.deduper == nil || eventID == "" {
		return
	}
	if err := s.deduper.Remember(ctx, eventID); err != nil {
		s.logger.Warn("Failed to remember event", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (s *ReconciliationService) archive(ctx context.Context, eventID string, payload []byte) {
	if s.archiver == nil {
		return
	}
	key := fmt.Sprintf("webhooks/%s/%s.json", s.now().Format("2006/01/02"), eventID)
	if err := s.archiver.Archive(ctx, key, payload); err != nil {
		s.logger.Warn("Failed to archive webhook", zap.String("key", key), zap.Error(err))
	}
}
