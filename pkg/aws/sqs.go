package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// MessageHandler processes one SQS message body. A nil return deletes the
// message; an error leaves it to reappear after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// QueueSender enqueues a message body onto a queue.
type QueueSender interface {
	Send(ctx context.Context, body []byte) error
}

const (
	defaultMinPollBackoff = time.Second
	defaultMaxPollBackoff = 30 * time.Second
)

// SQSConsumer long-polls a single queue.
type SQSConsumer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewSQSConsumer(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:     sqs.NewFromConfig(cfg),
		queueURL:   queueURL,
		logger:     logger,
		minBackoff: defaultMinPollBackoff,
		maxBackoff: defaultMaxPollBackoff,
	}
}

// nextBackoff doubles the previous wait, starting at min and capped at max.
func nextBackoff(prev, min, max time.Duration) time.Duration {
	if prev < min {
		return min
	}
	next := prev * 2
	if next > max {
		return max
	}
	return next
}

// StartPolling runs until ctx is cancelled.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting SQS polling", zap.String("queue_url", c.queueURL))

	var backoff time.Duration
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("SQS polling stopped", zap.String("queue_url", c.queueURL))
			return ctx.Err()
		default:
		}

		err := c.pollOnce(ctx, handler)
		if err == nil {
			backoff = 0
			continue
		}
		if errors.Is(err, context.Canceled) {
			continue
		}

		backoff = nextBackoff(backoff, c.minBackoff, c.maxBackoff)
		c.logger.Warn("Error polling SQS", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			c.logger.Info("SQS polling stopped", zap.String("queue_url", c.queueURL))
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *SQSConsumer) pollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            sdkaws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   30,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}
		if err := handler(ctx, *msg.Body); err != nil {
			c.logger.Warn("Failed to process SQS message; leaving for redelivery",
				zap.Stringp("message_id", msg.MessageId),
				zap.Error(err),
			)
			continue
		}
		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			c.logger.Warn("Failed to delete SQS message", zap.Stringp("message_id", msg.MessageId), zap.Error(err))
		}
	}
	return nil
}

// SQSProducer sends messages to a single queue.
type SQSProducer struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSProducer(cfg sdkaws.Config, queueURL string) *SQSProducer {
	return &SQSProducer{client: sqs.NewFromConfig(cfg), queueURL: queueURL}
}

func (p *SQSProducer) Send(ctx context.Context, body []byte) error {
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(p.queueURL),
		MessageBody: sdkaws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send failed for queue %s: %w", p.queueURL, err)
	}
	return nil
}
