package services

import (
	"context"
	"encoding/json"
	"time"

	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	"go.uber.org/zap"
)

// DefaultStoreTimeout bounds a single store call when none is configured.
const DefaultStoreTimeout = 5 * time.Second

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// publishEvent sends v to topicArn tagged with eventType. Failures are logged
// and never returned.
func publishEvent(ctx context.Context, publisher aws_pkg.SNSPublisher, topicArn, eventType string, v interface{}, logger *zap.Logger) {
	if publisher == nil || topicArn == "" {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Failed to marshal event", zap.Error(err))
		return
	}
	if err := publisher.Publish(ctx, topicArn, eventType, body); err != nil {
		logger.Warn("SNS publish failed", zap.String("topic_arn", topicArn), zap.Error(err))
	}
}

func recordCount(ctx context.Context, metrics aws_pkg.MetricsRecorder, name string, dims map[string]string) {
	if metrics == nil {
		return
	}
	_ = metrics.RecordCount(ctx, name, dims)
}
