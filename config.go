package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Pinak57/localchef-server/database"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
)

// Config holds all configuration for the LocalChef server.
type Config struct {
	Port        string
	Env         string
	ServiceName string

	Store        database.StoreConfig
	StoreTimeout time.Duration

	StripeAPIKey        string
	StripeWebhookSecret string
	StripeTimeout       time.Duration
	StripeMaxAttempts   int
	FrontendURL         string

	JWTSecret           string
	TrustGatewayHeaders bool
	AllowedOrigins      string
	RateLimitPerMinute  int

	MealServiceURL          string
	OrderSNSTopicARN        string
	PaymentSNSTopicARN      string
	SettlementRetryQueueURL string
	WebhookArchiveBucket    string
	RedisURL                string
}

// LoadConfig reads configuration from environment variables with optional
// Secrets Manager override.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                    getEnv("PORT", "8085"),
		Env:                     getEnv("APP_ENV", "development"),
		ServiceName:             getEnv("SERVICE_NAME", "localchef-server"),
		Store:                   database.StoreConfigFromEnv(),
		StoreTimeout:            getDuration("STORE_TIMEOUT", 5*time.Second),
		StripeAPIKey:            os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:     os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeTimeout:           getDuration("STRIPE_TIMEOUT", 10*time.Second),
		StripeMaxAttempts:       getInt("STRIPE_MAX_ATTEMPTS", 3),
		FrontendURL:             getEnv("FRONTEND_URL", "http://localhost:3000"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		TrustGatewayHeaders:     os.Getenv("TRUST_GATEWAY_HEADERS") == "true",
		AllowedOrigins:          getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		RateLimitPerMinute:      getInt("RATE_LIMIT_PER_MINUTE", 120),
		MealServiceURL:          os.Getenv("MEAL_SERVICE_URL"),
		OrderSNSTopicARN:        os.Getenv("ORDER_SNS_TOPIC_ARN"),
		PaymentSNSTopicARN:      os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		SettlementRetryQueueURL: os.Getenv("SETTLEMENT_RETRY_QUEUE_URL"),
		WebhookArchiveBucket:    os.Getenv("WEBHOOK_ARCHIVE_BUCKET"),
		RedisURL:                os.Getenv("REDIS_URL"),
	}

	// Override secrets from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx := context.Background()
		name := getEnv("SECRETS_NAME", "localchef/SERVER_SECRETS")
		sm, err := newSecretGetter(ctx)
		if err != nil {
			return nil, fmt.Errorf("AWS_USE_SECRETS=true: %w", err)
		}
		if err := applySecrets(ctx, cfg, sm, name); err != nil {
			return nil, fmt.Errorf("apply secret %s: %w", name, err)
		}
	}

	if cfg.StripeAPIKey == "" || cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_API_KEY and STRIPE_WEBHOOK_SECRET are required")
	}
	if cfg.JWTSecret == "" && !cfg.TrustGatewayHeaders {
		return nil, fmt.Errorf("JWT_SECRET is required unless TRUST_GATEWAY_HEADERS=true")
	}
	if cfg.StripeMaxAttempts < 1 {
		cfg.StripeMaxAttempts = 1
	}
	if cfg.RateLimitPerMinute < 1 {
		cfg.RateLimitPerMinute = 120
	}
	return cfg, nil
}

var newSecretGetter = func(ctx context.Context) (aws_pkg.SecretGetter, error) {
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return aws_pkg.NewSecretsClient(awsCfg), nil
}

// applySecrets overlays the named JSON secret onto cfg. Empty fields keep the
// environment value.
func applySecrets(ctx context.Context, cfg *Config, secrets aws_pkg.SecretGetter, name string) error {
	m, err := aws_pkg.SecretFields(ctx, secrets, name)
	if err != nil {
		return err
	}
	if v, ok := m["STRIPE_API_KEY"]; ok {
		cfg.StripeAPIKey = v
	}
	if v, ok := m["STRIPE_WEBHOOK_SECRET"]; ok {
		cfg.StripeWebhookSecret = v
	}
	if v, ok := m["JWT_SECRET"]; ok {
		cfg.JWTSecret = v
	}
	if v, ok := m["MONGO_URI"]; ok {
		cfg.Store.MongoURI = v
	}
	if v, ok := m["POSTGRES_DSN"]; ok {
		cfg.Store.PostgresDSN = v
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}
