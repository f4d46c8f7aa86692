package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Pinak57/localchef-server/models"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	"go.uber.org/zap"
)

// QueuePoller is the part of aws_pkg.SQSConsumer the consumer needs.
type QueuePoller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// SettlementReplayer re-applies the order half of a settlement.
type SettlementReplayer interface {
	ReplaySettlement(ctx context.Context, retry models.SettlementRetry) error
}

// SQSReconcileConsumer drains the settlement retry queue.
type SQSReconcileConsumer struct {
	poller   QueuePoller
	replayer SettlementReplayer
	logger   *zap.Logger
}

func NewSQSReconcileConsumer(poller QueuePoller, replayer SettlementReplayer, logger *zap.Logger) *SQSReconcileConsumer {
	return &SQSReconcileConsumer{poller: poller, replayer: replayer, logger: logger}
}

// Start polls until ctx is cancelled.
func (c *SQSReconcileConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting settlement retry consumer")

	err := c.poller.StartPolling(ctx, c.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Settlement retry polling stopped", zap.Error(err))
	}
}

// HandleMessage returns an error only when the message should be redelivered.
func (c *SQSReconcileConsumer) HandleMessage(ctx context.Context, body string) error {
	// unwrap an SNS envelope if the queue is subscribed to a topic
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	var retry models.SettlementRetry
	if err := json.Unmarshal([]byte(body), &retry); err != nil {
		c.logger.Warn("Invalid settlement retry message; dropping", zap.Error(err))
		return nil
	}
	if retry.SessionID == "" {
		c.logger.Warn("Settlement retry without session id; dropping", zap.String("order_id", retry.OrderID))
		return nil
	}

	if err := c.replayer.ReplaySettlement(ctx, retry); err != nil {
		c.logger.Warn("Settlement replay failed",
			zap.String("order_id", retry.OrderID),
			zap.String("session_id", retry.SessionID),
			zap.Error(err),
		)
		return err
	}
	c.logger.Info("Settlement replayed", zap.String("order_id", retry.OrderID))
	return nil
}
