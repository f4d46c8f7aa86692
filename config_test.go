package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Pinak57/localchef-server/database"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "STORE_TIMEOUT", "STRIPE_TIMEOUT", "STRIPE_MAX_ATTEMPTS", "TRUST_GATEWAY_HEADERS"} {
		t.Setenv(key, "")
	}
	t.Setenv("STRIPE_API_KEY", "sk_test")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AWS_USE_SECRETS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8085", cfg.Port)
	assert.Equal(t, database.BackendMongo, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 10*time.Second, cfg.StripeTimeout)
	assert.Equal(t, 3, cfg.StripeMaxAttempts)
	assert.False(t, cfg.TrustGatewayHeaders)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STRIPE_API_KEY", "sk_test")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("TRUST_GATEWAY_HEADERS", "true")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_BACKEND", "dynamodb")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("STRIPE_MAX_ATTEMPTS", "0")
	t.Setenv("AWS_USE_SECRETS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, database.BackendDynamo, cfg.Store.Backend)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 1, cfg.StripeMaxAttempts)
}

func TestLoadConfig_RequiresSecrets(t *testing.T) {
	t.Setenv("STRIPE_API_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("AWS_USE_SECRETS", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("STRIPE_API_KEY", "sk_test")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TRUST_GATEWAY_HEADERS", "")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestApplySecrets(t *testing.T) {
	secrets := fakeSecrets{
		"app":    `{"STRIPE_API_KEY":"new","JWT_SECRET":""}`,
		"broken": `not json`,
	}
	cfg := &Config{StripeAPIKey: "old", JWTSecret: "keep"}

	require.NoError(t, applySecrets(context.Background(), cfg, secrets, "app"))
	assert.Equal(t, "new", cfg.StripeAPIKey)
	assert.Equal(t, "keep", cfg.JWTSecret)

	assert.Error(t, applySecrets(context.Background(), cfg, secrets, "broken"))
	assert.Error(t, applySecrets(context.Background(), cfg, secrets, "missing"))
	assert.Equal(t, "new", cfg.StripeAPIKey)
}

func useSecrets(t *testing.T, getter func(context.Context) (aws_pkg.SecretGetter, error)) {
	t.Helper()
	prev := newSecretGetter
	newSecretGetter = getter
	t.Cleanup(func() { newSecretGetter = prev })

	t.Setenv("AWS_USE_SECRETS", "true")
	t.Setenv("SECRETS_NAME", "localchef/test")
	t.Setenv("STRIPE_API_KEY", "sk_env")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("POSTGRES_DSN", "")
}

func TestLoadConfig_SecretsOverlay(t *testing.T) {
	useSecrets(t, func(context.Context) (aws_pkg.SecretGetter, error) {
		return fakeSecrets{"localchef/test": `{"STRIPE_API_KEY":"sk_secret","JWT_SECRET":"","POSTGRES_DSN":"postgres://secret"}`}, nil
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk_secret", cfg.StripeAPIKey)
	assert.Equal(t, "whsec_env", cfg.StripeWebhookSecret)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
	assert.Equal(t, "postgres://secret", cfg.Store.PostgresDSN)
}

func TestLoadConfig_SecretsFailuresAreReturned(t *testing.T) {
	t.Run("aws config", func(t *testing.T) {
		useSecrets(t, func(context.Context) (aws_pkg.SecretGetter, error) {
			return nil, errors.New("no credentials")
		})
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "no credentials")
	})

	t.Run("secret lookup", func(t *testing.T) {
		useSecrets(t, func(context.Context) (aws_pkg.SecretGetter, error) {
			return fakeSecrets{}, nil
		})
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "localchef/test")
	})

	t.Run("malformed secret", func(t *testing.T) {
		useSecrets(t, func(context.Context) (aws_pkg.SecretGetter, error) {
			return fakeSecrets{"localchef/test": "not json"}, nil
		})
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "not a JSON object")
	})
}
