package middleware

import (
	"github.com/Pinak57/localchef-server/models"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/gin-gonic/gin"
)

type Action string

const (
	ActionPlaceOrder       Action = "order:place"
	ActionListOwnOrders    Action = "order:list_own"
	ActionListIncoming     Action = "order:list_incoming"
	ActionViewOrder        Action = "order:view"
	ActionCancelOrder      Action = "order:cancel"
	ActionAcceptOrder      Action = "order:accept"
	ActionRejectOrder      Action = "order:reject"
	ActionCreateCheckout   Action = "payment:create"
	ActionListOwnPayments  Action = "payment:list_own"
	ActionAdminListOrders  Action = "admin:orders"
	ActionAdminListPayment Action = "admin:payments"
)

// Can reports whether identity may perform action. A nil order checks the
// role alone; a non-nil order also checks the caller's relation to it.
func Can(identity models.Identity, action Action, order *models.Order) bool {
	switch action {
	case ActionPlaceOrder, ActionListOwnOrders:
		return identity.Role == models.RoleCustomer
	case ActionListIncoming:
		return identity.Role == models.RoleChef
	case ActionCancelOrder:
		return identity.Role == models.RoleCustomer && (order == nil || order.CustomerEmail == identity.Email)
	case ActionAcceptOrder, ActionRejectOrder:
		return identity.Role == models.RoleChef && (order == nil || order.ChefID == identity.ChefID())
	case ActionViewOrder:
		if order == nil || identity.Role == models.RoleAdmin {
			return true
		}
		return order.CustomerEmail == identity.Email ||
			(identity.Role == models.RoleChef && order.ChefID == identity.ChefID())
	case ActionCreateCheckout:
		return order == nil || order.CustomerEmail == identity.Email
	case ActionListOwnPayments:
		return true
	case ActionAdminListOrders, ActionAdminListPayment:
		return identity.Role == models.RoleAdmin
	}
	return false
}

// Authorize gates a route on the role-level Can check.
func Authorize(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			AbortWithError(c, apperrors.Unauthorized("Unauthorized"))
			return
		}
		if !Can(identity, action, nil) {
			AbortWithError(c, apperrors.Forbidden("Role not permitted for this action"))
			return
		}
		c.Next()
	}
}
