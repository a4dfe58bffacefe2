// cmd/tools/circulation-admin/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "circulation-admin",
		Short: "Operate the circulation request store and sweeps",
		Long: `circulation-admin runs the maintenance operations of the circulation
workers by hand: schema migration, the pending-request sweep, the
retention purges and institution property management.

Examples:
  circulation-admin migrate
  circulation-admin identify-pending
  circulation-admin purge-exceptions --config configs/config.prod.yaml
  circulation-admin set-property PUL ils.default.pickup.location rcpcirc`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to configs/config.yaml)")

	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(identifyPendingCmd(&configPath))
	rootCmd.AddCommand(purgeEmailCmd(&configPath))
	rootCmd.AddCommand(purgeExceptionsCmd(&configPath))
	rootCmd.AddCommand(pickupLocationCmd(&configPath))
	rootCmd.AddCommand(setPropertyCmd(&configPath))
	rootCmd.AddCommand(institutionsCmd(&configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}
