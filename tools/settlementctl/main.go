package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Pinak57/localchef-server/database"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	"github.com/Pinak57/localchef-server/pkg/logger"
	"github.com/Pinak57/localchef-server/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var backend string
	var timeout time.Duration
	cancel := func() {}

	rootCmd := &cobra.Command{
		Use:          "settlementctl",
		Short:        "Inspect and repair LocalChef payment settlements",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var ctx context.Context
			ctx, cancel = context.WithTimeout(cmd.Context(), timeout)
			cmd.SetContext(ctx)
		},
	}
	rootCmd.PersistentFlags().StringVar(&backend, "store", getEnv("STORE_BACKEND", database.BackendMongo), "Store backend (mongo, dynamodb, postgres)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")

	open := func(cmd *cobra.Command) (Settlements, func(), error) {
		log := logger.MustNew(getEnv("APP_ENV", "development"), nil)
		ctx := cmd.Context()

		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		stores, err := database.OpenStores(ctx, storeConfig(backend), awsCfg, log)
		if err != nil {
			return nil, nil, err
		}

		// settlement replay never talks to the gateway
		gateway := services.NewStripeService("", "", "")
		svc := services.NewReconciliationService(gateway, stores.Payments, stores.Orders, services.ReconciliationDeps{}, log, 0)
		return svc, func() {
			if err := stores.Close(); err != nil {
				log.Warn("Store close failed", zap.Error(err))
			}
			_ = log.Sync()
		}, nil
	}

	rootCmd.AddCommand(inspectCmd(open), replayCmd(open), migrateCmd())

	err := rootCmd.ExecuteContext(context.Background())
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func storeConfig(backend string) database.StoreConfig {
	cfg := database.StoreConfigFromEnv()
	cfg.Backend = backend
	return cfg
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
