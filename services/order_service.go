package services

import (
	"context"
	"errors"
	"time"

	"github.com/Pinak57/localchef-server/models"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/Pinak57/localchef-server/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PlaceOrderRequest struct {
	MealID   string  `json:"mealId" validate:"required"`
	MealName string  `json:"mealName" validate:"required"`
	Price    float64 `json:"price" validate:"gt=0"`
	ChefID   string  `json:"chefId" validate:"required"`
	ChefName string  `json:"chefName" validate:"required"`
}

type OrderService struct {
	repo         repository.OrderRepository
	catalog      MealCatalog
	validate     *validator.Validate
	publisher    aws_pkg.SNSPublisher
	topicArn     string
	metrics      aws_pkg.MetricsRecorder
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// NewOrderService creates the order lifecycle manager. catalog, publisher
// and metrics may be nil.
func NewOrderService(
	repo repository.OrderRepository,
	catalog MealCatalog,
	publisher aws_pkg.SNSPublisher,
	topicArn string,
	metrics aws_pkg.MetricsRecorder,
	logger *zap.Logger,
	storeTimeout time.Duration,
) *OrderService {
	return &OrderService{
		repo:         repo,
		catalog:      catalog,
		validate:     validator.New(),
		publisher:    publisher,
		topicArn:     topicArn,
		metrics:      metrics,
		logger:       logger,
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder creates a pending, unpaid order owned by the customer.
func (s *OrderService) PlaceOrder(ctx context.Context, customer models.Identity, req PlaceOrderRequest) (*models.Order, error) {
	if customer.Email == "" {
		return nil, apperrors.Unauthorized("Missing customer email")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "Invalid order: "+err.Error(), err)
	}

	if s.catalog != nil {
		meal, err := s.catalog.FetchMeal(ctx, req.MealID)
		if errors.Is(err, ErrMealNotFound) {
			return nil, apperrors.Validation("Unknown meal")
		}
		if err != nil {
			s.logger.Error("Meal catalog lookup failed", zap.String("meal_id", req.MealID), zap.Error(err))
			return nil, apperrors.Gateway("Meal catalog unavailable", err)
		}
		req.MealName = meal.Name
		req.Price = meal.Price
		req.ChefID = meal.ChefID
		req.ChefName = meal.ChefName
		if req.Price <= 0 {
			return nil, apperrors.Validation("Meal has no valid price")
		}
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		MealID:        req.MealID,
		MealName:      req.MealName,
		Price:         req.Price,
		CustomerEmail: customer.Email,
		ChefID:        req.ChefID,
		ChefName:      req.ChefName,
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusUnpaid,
		OrderTime:     s.now(),
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repo.Create(storeCtx, order); err != nil {
		s.logger.Error("Failed to create order", zap.Error(err))
		return nil, apperrors.Store("Failed to create order", err)
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("customer_email", order.CustomerEmail),
		zap.String("chef_id", order.ChefID),
	)
	recordCount(ctx, s.metrics, aws_pkg.MetricOrdersPlaced, nil)
	s.publish(ctx, "order_placed", order)
	return order, nil
}

// Cancel moves a pending order to cancelled on behalf of its customer.
func (s *OrderService) Cancel(ctx context.Context, orderID, customerEmail string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.Owner{Field: models.OwnerCustomer, Value: customerEmail}, models.OrderStatusCancelled)
}

// Accept moves a pending order to accepted on behalf of its chef.
func (s *OrderService) Accept(ctx context.Context, orderID, chefID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.Owner{Field: models.OwnerChef, Value: chefID}, models.OrderStatusAccepted)
}

// Reject moves a pending order to rejected on behalf of its chef.
func (s *OrderService) Reject(ctx context.Context, orderID, chefID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.Owner{Field: models.OwnerChef, Value: chefID}, models.OrderStatusRejected)
}

// transition pre-reads the order to classify the failure, then lets the store
// apply the change only if {id, owner, pending} still holds.
func (s *OrderService) transition(ctx context.Context, orderID string, owner models.Owner, to models.OrderStatus) (*models.Order, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	current, err := s.repo.FindByID(storeCtx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperrors.Store("Failed to load order", err)
	}
	if !current.OwnedBy(owner) {
		return nil, apperrors.Forbidden("Not allowed to modify this order")
	}
	if current.OrderStatus.Terminal() {
		return nil, apperrors.InvalidState("Order is already " + string(current.OrderStatus))
	}

	updated, err := s.repo.Transition(storeCtx, models.OrderTransition{
		OrderID: orderID,
		Owner:   owner,
		To:      to,
		At:      s.now(),
	})
	switch {
	case errors.Is(err, repository.ErrConditionFailed):
		s.logger.Info("Order transition lost race",
			zap.String("order_id", orderID),
			zap.String("to", string(to)),
		)
		return nil, apperrors.InvalidState("Order is no longer pending")
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("Order not found")
	case err != nil:
		s.logger.Error("Failed to update order", zap.String("order_id", orderID), zap.Error(err))
		return nil, apperrors.Store("Failed to update order", err)
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("order_status", string(updated.OrderStatus)),
	)
	recordCount(ctx, s.metrics, transitionMetric[to], nil)
	s.publish(ctx, "order_"+string(to), updated)
	return updated, nil
}

var transitionMetric = map[models.OrderStatus]string{
	models.OrderStatusAccepted:  aws_pkg.MetricOrdersAccepted,
	models.OrderStatusRejected:  aws_pkg.MetricOrdersRejected,
	models.OrderStatusCancelled: aws_pkg.MetricOrdersCancelled,
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	order, err := s.repo.FindByID(storeCtx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperrors.Store("Failed to load order", err)
	}
	return order, nil
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, email string) ([]models.Order, error) {
	return s.list(ctx, func(c context.Context) ([]models.Order, error) { return s.repo.FindByCustomerEmail(c, email) })
}

func (s *OrderService) ListChefOrders(ctx context.Context, chefID string) ([]models.Order, error) {
	return s.list(ctx, func(c context.Context) ([]models.Order, error) { return s.repo.FindByChefID(c, chefID) })
}

func (s *OrderService) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	return s.list(ctx, s.repo.FindAll)
}

func (s *OrderService) list(ctx context.Context, find func(context.Context) ([]models.Order, error)) ([]models.Order, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	orders, err := find(storeCtx)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, apperrors.Store("Failed to fetch orders", err)
	}
	return orders, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order) {
	publishEvent(ctx, s.publisher, s.topicArn, eventType, models.OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		ChefID:        order.ChefID,
		OrderStatus:   string(order.OrderStatus),
		PaymentStatus: string(order.PaymentStatus),
		Timestamp:     s.now(),
	}, s.logger)
}
