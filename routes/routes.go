package routes

import (
	"github.com/Pinak57/localchef-server/controllers"
	"github.com/Pinak57/localchef-server/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterOrderRoutes sets up customer, chef and admin order routes.
func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController, auth gin.HandlerFunc) {
	orderRoutes := r.Group("/orders")
	orderRoutes.Use(auth)

	orderRoutes.POST("", middleware.Authorize(middleware.ActionPlaceOrder), oc.PlaceOrder)
	orderRoutes.GET("/mine", middleware.Authorize(middleware.ActionListOwnOrders), oc.ListMine)
	orderRoutes.GET("/incoming", middleware.Authorize(middleware.ActionListIncoming), oc.ListIncoming)
	orderRoutes.GET("/:id", oc.GetOrder)

	orderRoutes.PUT("/:id/cancel", middleware.Authorize(middleware.ActionCancelOrder), oc.Cancel)
	orderRoutes.PUT("/:id/accept", middleware.Authorize(middleware.ActionAcceptOrder), oc.Accept)
	orderRoutes.PUT("/:id/reject", middleware.Authorize(middleware.ActionRejectOrder), oc.Reject)
}

// RegisterPaymentRoutes sets up checkout and the unauthenticated gateway webhook.
func RegisterPaymentRoutes(r *gin.Engine, pc *controllers.PaymentController, auth gin.HandlerFunc) {
	paymentRoutes := r.Group("/payments")

	// signature-verified instead of authenticated
	paymentRoutes.POST("/webhook", pc.StripeWebhook)

	authed := paymentRoutes.Group("")
	authed.Use(auth)
	authed.POST("/create-payment", middleware.Authorize(middleware.ActionCreateCheckout), pc.CreatePayment)
	authed.GET("/mine", middleware.Authorize(middleware.ActionListOwnPayments), pc.ListMine)
}

func RegisterAdminRoutes(r *gin.Engine, oc *controllers.OrderController, pc *controllers.PaymentController, auth gin.HandlerFunc) {
	adminRoutes := r.Group("/admin")
	adminRoutes.Use(auth)
	adminRoutes.GET("/orders", middleware.Authorize(middleware.ActionAdminListOrders), oc.ListAll)
	adminRoutes.GET("/payments", middleware.Authorize(middleware.ActionAdminListPayment), pc.ListAll)
}
