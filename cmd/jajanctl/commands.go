package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/stream"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [stream-key]",
		Short: "Print alerts from a creator's stream as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("count")
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd, args[0], limit)
		},
	}
	cmd.Flags().IntP("count", "n", 0, "Exit after this many alerts (0 = run until interrupted)")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, key string, limit int) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithCancel(ctx)

	alerts := make(chan models.AlertEvent, 16)
	client := stream.NewClient(backendURL(cmd), stream.Options{})
	sub, err := client.Subscribe(key,
		func(a models.AlertEvent) {
			select {
			case alerts <- a:
			case <-ctx.Done():
			}
		},
		func(st stream.Status) { fmt.Fprintf(out, "[%s]\n", st) })
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		sub.Close()
	}()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-alerts:
			fmt.Fprintf(out, "%s: %s\n", a.SupporterName, a.DisplayText())
			if a.Message != "" {
				fmt.Fprintf(out, "  %q\n", a.Message)
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func testAlertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-alert [stream-key]",
		Short: "Send a test alert to every overlay connected with the key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := newClient(cmd).TestAlert(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test alert sent to %d overlay(s)\n", count)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [order-id]",
		Short: "Look up the payment status of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient(cmd).Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (code %s)\n", args[0], backend.Classify(res.Code), res.Code)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel [order-id]",
		Short: "Cancel a pending payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tradeNo, _ := cmd.Flags().GetString("platform-trade-no")
			if err := newClient(cmd).Cancel(cmd.Context(), args[0], tradeNo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancel requested for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("platform-trade-no", "", "Gateway trade number of the order")
	return cmd
}

func feeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Show the admin fee and optionally price a checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			price, _ := cmd.Flags().GetInt64("price")
			qty, _ := cmd.Flags().GetInt("qty")

			cache := feeconfig.NewCache(newClient(cmd), feeconfig.DefaultPercent)
			cache.Load(cmd.Context())

			out := cmd.OutOrStdout()
			source := "default"
			if cache.FromBackend() {
				source = "backend"
			}
			fmt.Fprintf(out, "Admin fee: %s%% (%s)\n", cache.Percent().String(), source)

			if price > 0 {
				q, err := cache.Quote(price, qty)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Subtotal:  %s\n", models.FormatRupiah(q.Subtotal))
				fmt.Fprintf(out, "Admin fee: %s\n", models.FormatRupiah(q.AdminFee))
				fmt.Fprintf(out, "Total:     %s\n", models.FormatRupiah(q.Total))
			}
			return nil
		},
	}
	cmd.Flags().Int64("price", 0, "Unit price in rupiah")
	cmd.Flags().Int("qty", 1, "Quantity")
	return cmd
}
