package controllers

import (
	"context"
	"net/http"

	"github.com/Pinak57/localchef-server/middleware"
	"github.com/Pinak57/localchef-server/models"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/Pinak57/localchef-server/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderManager is the order lifecycle surface the controller depends on.
type OrderManager interface {
	PlaceOrder(ctx context.Context, customer models.Identity, req services.PlaceOrderRequest) (*models.Order, error)
	Cancel(ctx context.Context, orderID, customerEmail string) (*models.Order, error)
	Accept(ctx context.Context, orderID, chefID string) (*models.Order, error)
	Reject(ctx context.Context, orderID, chefID string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListCustomerOrders(ctx context.Context, email string) ([]models.Order, error)
	ListChefOrders(ctx context.Context, chefID string) ([]models.Order, error)
	ListAllOrders(ctx context.Context) ([]models.Order, error)
}

type OrderController struct {
	orders OrderManager
	logger *zap.Logger
}

func NewOrderController(orders OrderManager, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, logger: logger}
}

// PlaceOrder creates a pending, unpaid order for the calling customer.
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, oc.logger, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req services.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, oc.logger, apperrors.New(apperrors.KindValidation, "Invalid request body", err))
		return
	}

	order, err := oc.orders.PlaceOrder(c.Request.Context(), identity, req)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": order.ID})
}

func (oc *OrderController) ListMine(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	oc.list(c, func(ctx context.Context) ([]models.Order, error) {
		return oc.orders.ListCustomerOrders(ctx, identity.Email)
	})
}

func (oc *OrderController) ListIncoming(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	oc.list(c, func(ctx context.Context) ([]models.Order, error) {
		return oc.orders.ListChefOrders(ctx, identity.ChefID())
	})
}

func (oc *OrderController) ListAll(c *gin.Context) {
	oc.list(c, oc.orders.ListAllOrders)
}

func (oc *OrderController) list(c *gin.Context, find func(context.Context) ([]models.Order, error)) {
	orders, err := find(c.Request.Context())
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder returns one order to its customer, its chef, or an admin.
func (oc *OrderController) GetOrder(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, oc.logger, apperrors.Unauthorized("Unauthorized"))
		return
	}

	order, err := oc.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	if !middleware.Can(identity, middleware.ActionViewOrder, order) {
		respondError(c, oc.logger, apperrors.Forbidden("Not allowed to view this order"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) Cancel(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	oc.transition(c, func(ctx context.Context, id string) (*models.Order, error) {
		return oc.orders.Cancel(ctx, id, identity.Email)
	})
}

func (oc *OrderController) Accept(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	oc.transition(c, func(ctx context.Context, id string) (*models.Order, error) {
		return oc.orders.Accept(ctx, id, identity.ChefID())
	})
}

func (oc *OrderController) Reject(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	oc.transition(c, func(ctx context.Context, id string) (*models.Order, error) {
		return oc.orders.Reject(ctx, id, identity.ChefID())
	})
}

func (oc *OrderController) transition(c *gin.Context, apply func(context.Context, string) (*models.Order, error)) {
	if _, err := apply(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modified": true})
}
