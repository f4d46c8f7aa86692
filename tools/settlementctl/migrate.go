package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Pinak57/localchef-server/database"
	"github.com/Pinak57/localchef-server/models"
	aws_pkg "github.com/Pinak57/localchef-server/pkg/aws"
	"github.com/Pinak57/localchef-server/pkg/logger"
	"github.com/Pinak57/localchef-server/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy orders and payments between store backends",
		Long: `Copies every order and payment from --from to --to. Paid payments are
written pending and then settled through the target's own settlement guard,
so the one-paid-payment-per-order rule holds in the target. Re-running skips
sessions that already exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == to {
				return fmt.Errorf("--from and --to must differ")
			}
			log := logger.MustNew(getEnv("APP_ENV", "development"), nil)
			defer log.Sync()

			ctx := cmd.Context()
			awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
			if err != nil {
				return err
			}
			src, err := database.OpenStores(ctx, storeConfig(from), awsCfg, log)
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer src.Close()
			dst, err := database.OpenStores(ctx, storeConfig(to), awsCfg, log)
			if err != nil {
				return fmt.Errorf("open target: %w", err)
			}
			defer dst.Close()

			return runMigrate(ctx, src, dst, cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().StringVar(&from, "from", database.BackendMongo, "Source store backend")
	cmd.Flags().StringVar(&to, "to", database.BackendDynamo, "Target store backend")
	return cmd
}

func runMigrate(ctx context.Context, src, dst *database.Stores, out io.Writer, log *zap.Logger) error {
	orders, err := src.Orders.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	var migratedOrders int
	for i := range orders {
		if err := dst.Orders.Create(ctx, &orders[i]); err != nil {
			log.Warn("Failed to copy order", zap.String("order_id", orders[i].ID), zap.Error(err))
			continue
		}
		migratedOrders++
	}

	payments, err := src.Payments.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	var migratedPayments, skipped int
	for i := range payments {
		p := payments[i]
		paidAt := p.PaidAt

		p.Status = models.PaymentRecordPending
		p.PaidAt = nil
		if err := dst.Payments.Create(ctx, &p); err != nil {
			if errors.Is(err, repository.ErrDuplicateSession) {
				skipped++
				continue
			}
			log.Warn("Failed to copy payment", zap.String("session_id", p.GatewaySessionID), zap.Error(err))
			continue
		}

		if paidAt != nil {
			if _, err := dst.Payments.MarkPaid(ctx, p.GatewaySessionID, *paidAt); err != nil {
				log.Error("Failed to settle copied payment",
					zap.String("session_id", p.GatewaySessionID),
					zap.String("order_id", p.OrderID),
					zap.Error(err),
				)
				continue
			}
		}
		migratedPayments++
	}

	fmt.Fprintf(out, "Migration complete. orders=%d/%d payments=%d/%d skipped=%d\n",
		migratedOrders, len(orders), migratedPayments, len(payments), skipped)
	return nil
}
