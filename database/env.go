package database

import (
	"fmt"
	"os"

	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
)

// StoreConfigFromEnv reads the store settings shared by the server and
// settlementctl.
func StoreConfigFromEnv() StoreConfig {
	return StoreConfig{
		Backend:       getEnv("STORE_BACKEND", BackendMongo),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "localchef"),
		OrdersTable:   getEnv("DDB_TABLE_ORDERS", "Orders"),
		PaymentsTable: getEnv("DDB_TABLE_PAYMENTS", "Payments"),
		PostgresDSN:   PostgresDSNFromEnv(),
		AWSEndpoint:   aws_pkg.Endpoint(),
	}
}

// PostgresDSNFromEnv returns POSTGRES_DSN, or a DSN assembled from the
// individual POSTGRES_* variables.
func PostgresDSNFromEnv() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		getEnv("POSTGRES_HOST", "localhost"),
		os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"),
		getEnv("POSTGRES_DB", "localchef"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_SSLMODE", "disable"),
		getEnv("POSTGRES_TIMEZONE", "UTC"),
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
