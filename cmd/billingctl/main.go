// Command billingctl is the operator tool for Stripe reconciliation: it lists the plan
// table, re-applies a checkout by hand and drains the replay queue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/johnp2003/captify-ai/app/config"
	"github.com/johnp2003/captify-ai/app/logger"
)

var rootCmd = &cobra.Command{
	Use:           "billingctl",
	Short:         "Captify billing operations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(plansCmd, reconcileCmd, replayCmd)
}

func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.NewStructured(cfg.Logs.Level, cfg.Logs.Format), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
