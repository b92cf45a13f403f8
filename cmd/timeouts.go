package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nroult/fieldops/app"
	"github.com/nroult/fieldops/config"
)

var timeoutsCmd = &cobra.Command{
	Use:   "sweep-timeouts",
	Short: "Expire offers past their response window and escalate",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(timeoutsCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	n, err := svc.Engine.SweepTimeouts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "expired %d offers\n", n)
	return nil
}
