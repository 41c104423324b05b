package main

import (
	"fmt"
	"os"

	"fuel-monitor/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fuelmon",
	Short: "Fuel ledger and anomaly monitor",
	Long: `fuelmon records vehicle refills against the fleet backend, flags odometer
regressions and abnormal consumption, and keeps a local alert ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (overrides FUELMON_CONFIG)")
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(alertsCommand())
}

// loadConfig honours --config before falling back to the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("FUELMON_CONFIG", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
