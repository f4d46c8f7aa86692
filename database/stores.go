package database

import (
	"context"
	"fmt"

	"github.com/Pinak57/localchef-server/repository"
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
)

const (
	BackendMongo    = "mongo"
	BackendDynamo   = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StoreConfig selects and configures the order/payment store.
type StoreConfig struct {
	Backend       string
	MongoURI      string
	MongoDBName   string
	OrdersTable   string
	PaymentsTable string
	PostgresDSN   string
	AWSEndpoint   string
}

// Stores is an opened order/payment store pair.
type Stores struct {
	Orders   repository.OrderRepository
	Payments repository.PaymentRepository
	close    func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores connects the configured backend and prepares its indexes.
func OpenStores(ctx context.Context, cfg StoreConfig, awsCfg sdkaws.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.Backend {
	case BackendMongo, "":
		client, db, err := ConnectMongo(cfg.MongoURI, cfg.MongoDBName, logger)
		if err != nil {
			return nil, err
		}
		orders := repository.NewMongoOrderRepository(db)
		payments := repository.NewMongoPaymentRepository(db)
		if err := orders.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("order indexes: %w", err)
		}
		if err := payments.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("payment indexes: %w", err)
		}
		return &Stores{Orders: orders, Payments: payments, close: func() error { return CloseMongo(client) }}, nil

	case BackendDynamo:
		client := NewDynamoClient(awsCfg, cfg.AWSEndpoint)
		logger.Info("Using DynamoDB store",
			zap.String("orders_table", cfg.OrdersTable),
			zap.String("payments_table", cfg.PaymentsTable),
		)
		return &Stores{
			Orders:   repository.NewDynamoOrderRepository(client, cfg.OrdersTable),
			Payments: repository.NewDynamoPaymentRepository(client, cfg.PaymentsTable),
		}, nil

	case BackendPostgres:
		db, err := ConnectPostgres(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := repository.MigrateGorm(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return &Stores{
			Orders:   repository.NewGormOrderRepository(db),
			Payments: repository.NewGormPaymentRepository(db),
			close:    func() error { return ClosePostgres(db) },
		}, nil

	case BackendMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		return &Stores{
			Orders:   repository.NewMemoryOrderRepository(),
			Payments: repository.NewMemoryPaymentRepository(),
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
}
