package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/Pinak57/localchef-server/middleware"
	"github.com/Pinak57/localchef-server/models"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/Pinak57/localchef-server/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody caps the webhook payload read into memory.
const maxWebhookBody = 65536

type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, customer models.Identity, req services.CreateCheckoutRequest) (*models.CheckoutSession, error)
}

type PaymentReconciler interface {
	HandleNotification(ctx context.Context, payload []byte, signatureHeader string) (services.NotificationResult, error)
	ListPayments(ctx context.Context, customerEmail string) ([]models.Payment, error)
}

type PaymentController struct {
	checkout   CheckoutCreator
	reconciler PaymentReconciler
	logger     *zap.Logger
}

func NewPaymentController(checkout CheckoutCreator, reconciler PaymentReconciler, logger *zap.Logger) *PaymentController {
	return &PaymentController{checkout: checkout, reconciler: reconciler, logger: logger}
}

// CreatePayment opens a hosted checkout session for one of the caller's orders.
func (pc *PaymentController) CreatePayment(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		respondError(c, pc.logger, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req services.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, pc.logger, apperrors.New(apperrors.KindValidation, "Invalid request body", err))
		return
	}

	session, err := pc.checkout.CreateCheckout(c.Request.Context(), identity, req)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (pc *PaymentController) ListMine(c *gin.Context) {
	identity, _ := middleware.GetIdentity(c)
	pc.listPayments(c, identity.Email)
}

func (pc *PaymentController) ListAll(c *gin.Context) {
	pc.listPayments(c, "")
}

func (pc *PaymentController) listPayments(c *gin.Context, email string) {
	payments, err := pc.reconciler.ListPayments(c.Request.Context(), email)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// StripeWebhook reconciles a gateway notification. Everything except a bad
// signature or an unqueued store failure is acknowledged so the gateway stops
// retrying; an order write handed to the retry queue counts as handled.
func (pc *PaymentController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, pc.logger, apperrors.New(apperrors.KindValidation, "Failed to read request body", err))
		return
	}

	result, err := pc.reconciler.HandleNotification(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		appErr := apperrors.From(err)
		if appErr.Kind == apperrors.KindStore {
			// the gateway redelivers on 5xx
			pc.logger.Error("Webhook processing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": appErr.Kind, "message": appErr.Message}})
			return
		}
		respondError(c, pc.logger, appErr)
		return
	}

	pc.logger.Debug("Webhook handled", zap.String("result", string(result)))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
