package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Pinak57/localchef-server/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	customer := models.Identity{SubjectID: "c1", Email: "c1@example.com", Role: models.RoleCustomer}
	other := models.Identity{SubjectID: "c2", Email: "c2@example.com", Role: models.RoleCustomer}
	chef := models.Identity{SubjectID: "chef-1", Email: "chef@example.com", Role: models.RoleChef}
	otherChef := models.Identity{SubjectID: "chef-2", Email: "chef2@example.com", Role: models.RoleChef}
	admin := models.Identity{SubjectID: "a1", Email: "admin@example.com", Role: models.RoleAdmin}
	order := &models.Order{ID: "o1", CustomerEmail: customer.Email, ChefID: chef.SubjectID}

	tests := []struct {
		name     string
		identity models.Identity
		action   Action
		order    *models.Order
		want     bool
	}{
		{"customer places", customer, ActionPlaceOrder, nil, true},
		{"chef cannot place", chef, ActionPlaceOrder, nil, false},
		{"chef lists incoming", chef, ActionListIncoming, nil, true},
		{"customer cannot list incoming", customer, ActionListIncoming, nil, false},
		{"owner cancels", customer, ActionCancelOrder, order, true},
		{"other customer cannot cancel", other, ActionCancelOrder, order, false},
		{"chef cannot cancel", chef, ActionCancelOrder, order, false},
		{"chef accepts own", chef, ActionAcceptOrder, order, true},
		{"other chef cannot accept", otherChef, ActionAcceptOrder, order, false},
		{"other chef cannot reject", otherChef, ActionRejectOrder, order, false},
		{"admin views any", admin, ActionViewOrder, order, true},
		{"customer views own", customer, ActionViewOrder, order, true},
		{"chef views own", chef, ActionViewOrder, order, true},
		{"stranger cannot view", other, ActionViewOrder, order, false},
		{"other chef cannot view", otherChef, ActionViewOrder, order, false},
		{"owner checks out", customer, ActionCreateCheckout, order, true},
		{"stranger cannot check out", other, ActionCreateCheckout, order, false},
		{"admin lists orders", admin, ActionAdminListOrders, nil, true},
		{"chef cannot list all", chef, ActionAdminListOrders, nil, false},
		{"unknown action", admin, Action("nope"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.identity, tt.action, tt.order))
		})
	}
}

func TestAuthorize(t *testing.T) {
	r := gin.New()
	r.GET("/incoming", func(c *gin.Context) {
		c.Set(IdentityContextKey, models.Identity{SubjectID: "c1", Email: "c1@example.com", Role: models.RoleCustomer})
	}, Authorize(ActionListIncoming), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/anon", Authorize(ActionListOwnPayments), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/incoming", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anon", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
