package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"github.com/spf13/cobra"
)

// Settlements is what the commands need from the reconciliation service.
type Settlements interface {
	Settlement(ctx context.Context, orderID string) (*models.Order, []models.Payment, error)
	ReplaySettlement(ctx context.Context, retry models.SettlementRetry) error
	ReplayAllPaid(ctx context.Context) (int, error)
}

// opener connects to the configured store; the returned func releases it.
type opener func(cmd *cobra.Command) (Settlements, func(), error)

func inspectCmd(open opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect [orderId]",
		Short: "Show an order's status axes and every payment recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()
			return runInspect(cmd.Context(), svc, cmd.OutOrStdout(), args[0], asJSON)
		},
	}
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func replayCmd(open opener) *cobra.Command {
	var sessionID, orderID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply the order half of paid settlements",
		Long: `Without flags, every paid payment is replayed onto its order.
With --session, only that payment is replayed. With --order, the paid payment
of that order is replayed; combined with --session, the session must belong
to the order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()
			return runReplay(cmd.Context(), svc, cmd.OutOrStdout(), sessionID, orderID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Gateway session id to replay")
	cmd.Flags().StringVar(&orderID, "order", "", "Order id to replay, or to check --session against")
	return cmd
}

func runInspect(ctx context.Context, svc Settlements, out io.Writer, orderID string, asJSON bool) error {
	order, payments, err := svc.Settlement(ctx, orderID)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"order": order, "payments": payments})
	}

	fmt.Fprintf(out, "Order %s\n", order.ID)
	fmt.Fprintf(out, "  Meal:     %s (%.2f)\n", order.MealName, order.Price)
	fmt.Fprintf(out, "  Customer: %s\n", order.CustomerEmail)
	fmt.Fprintf(out, "  Chef:     %s\n", order.ChefID)
	fmt.Fprintf(out, "  Order:    %s\n", order.OrderStatus)
	fmt.Fprintf(out, "  Payment:  %s\n", order.PaymentStatus)

	if len(payments) == 0 {
		fmt.Fprintln(out, "\nNo payments recorded.")
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTATUS\tAMOUNT\tCREATED\tPAID")
	for _, p := range payments {
		paid := "-"
		if p.PaidAt != nil {
			paid = p.PaidAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f %s\t%s\t%s\n",
			p.GatewaySessionID, p.Status, p.Amount, p.Currency, p.CreatedAt.Format(time.RFC3339), paid)
	}
	return tw.Flush()
}

func runReplay(ctx context.Context, svc Settlements, out io.Writer, sessionID, orderID string) error {
	if orderID != "" {
		resolved, err := sessionForOrder(ctx, svc, orderID, sessionID)
		if err != nil {
			return err
		}
		sessionID = resolved
	}

	if sessionID != "" {
		if err := svc.ReplaySettlement(ctx, models.SettlementRetry{SessionID: sessionID, OrderID: orderID}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Replayed session %s\n", sessionID)
		return nil
	}

	n, err := svc.ReplayAllPaid(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Replayed %d paid payments\n", n)
	return nil
}

// sessionForOrder returns the session to replay for orderID. A given session
// must be one of the order's payments; otherwise the order's paid payment is
// used.
func sessionForOrder(ctx context.Context, svc Settlements, orderID, sessionID string) (string, error) {
	_, payments, err := svc.Settlement(ctx, orderID)
	if err != nil {
		return "", err
	}
	for _, p := range payments {
		if sessionID != "" && p.GatewaySessionID == sessionID {
			return sessionID, nil
		}
		if sessionID == "" && p.Status == models.PaymentRecordPaid {
			return p.GatewaySessionID, nil
		}
	}
	if sessionID != "" {
		return "", fmt.Errorf("session %s does not belong to order %s", sessionID, orderID)
	}
	return "", fmt.Errorf("order %s has no paid payment", orderID)
}
