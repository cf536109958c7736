package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cttsync/internal/coordinator"
)

// runBatch runs one full batch in the foreground.
func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.coordinator.Trigger(ctx, true)
	if res != nil && res.Summary != nil {
		if perr := printJSON(cmd.OutOrStdout(), res.Summary); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	return summaryError(res.Summary)
}

// runPatch reconciles the selected orders.
func runPatch(cmd *cobra.Command, args []string) error {
	orderID, _ := cmd.Flags().GetString("order-id")
	tracking, _ := cmd.Flags().GetString("tracking")
	filter := coordinator.Filter{OrderID: orderID, Tracking: tracking}
	if filter.IsZero() {
		return fmt.Errorf("one of --order-id or --tracking is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	summary, err := a.coordinator.TriggerSelected(ctx, filter)
	if summary != nil {
		if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if summary.TotalOrders == 0 {
		return fmt.Errorf("no order matches %+v", filter)
	}
	return summaryError(summary)
}

// summaryError turns per-order failures into a non-zero exit.
func summaryError(s *coordinator.RunSummary) error {
	if s == nil || len(s.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d orders failed", len(s.Failures), s.TotalOrders)
}

// signalContext applies --timeout and cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
