package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"fuel-monitor/internal/alerts"
	"fuel-monitor/internal/logging"
	"fuel-monitor/pkg/redis"
	"fuel-monitor/pkg/storage"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func alertsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and manage the local alert ledger",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withStore(cmd, func(ctx context.Context, store *alerts.Store) error {
				snapshot := store.Snapshot()
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(snapshot.Alerts)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tDATE\tREAD\tMESSAGE")
				for _, a := range snapshot.Alerts {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", a.ID, a.Date, a.Read, a.Message)
				}
				fmt.Fprintf(w, "\n%d alerts, %d unread\n", len(snapshot.Alerts), snapshot.UnreadCount())
				return w.Flush()
			})
		},
	}
	listCmd.Flags().Bool("json", false, "Print as JSON")

	readCmd := &cobra.Command{
		Use:     "read <id>",
		Short:   "Mark an alert as read",
		Args:    cobra.ExactArgs(1),
		Example: "fuelmon alerts read 3f0c6a52-8d0e-4c55-9a43-1b0a6f4f2a10",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *alerts.Store) error {
				alert, err := store.MarkAsRead(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read: %s\n", alert.ID, alert.Message)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *alerts.Store) error {
				if err := store.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Alerts cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, readCmd, clearCmd)
	return cmd
}

// withStore opens the configured storage, loads the ledger and runs fn against it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *alerts.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var rdb *goredis.Client
	if cfg.UsesRedis() {
		redisClient := redis.NewClient(cfg.Redis)
		defer redisClient.Close()
		rdb = redisClient.GetClient()
	}

	blob, err := storage.Open(ctx, cfg.Storage, rdb)
	if err != nil {
		return fmt.Errorf("failed to open alert storage: %w", err)
	}
	defer blob.Close()

	store := alerts.NewStore(blob,
		alerts.WithKey(cfg.Alerts.StorageKey),
		alerts.WithMaxAlerts(cfg.Alerts.MaxAlerts),
		alerts.WithMaxAge(cfg.Alerts.MaxAge),
		alerts.WithLogger(logging.NewLogger(cfg.LogLevel)),
	)
	defer store.Close()

	if err := store.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, store)
}
