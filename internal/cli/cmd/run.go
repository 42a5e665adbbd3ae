package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/paymesh/payment-pipeline-workflow/internal/cli/runner"
)

var (
	// dryRun flag for validation only
	dryRun bool

	runCmd = &cobra.Command{
		Use:   "run [config file]",
		Short: "Run a payment gateway from configuration",
		Long:  "Start the payment gateway using the specified configuration file",
		Args:  cobra.ExactArgs(1),
		Example: `  payctl run gateway.yaml
  payctl run config/production.yaml
  payctl run --dry-run gateway.yaml`,
		RunE: runGateway,
	}
)

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate configuration without starting the gateway")
	rootCmd.AddCommand(runCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	configFile := args[0]

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configFile)
	}

	r := runner.New(runner.Options{
		ConfigFile: configFile,
		Verbose:    verbose,
	})

	if dryRun {
		fmt.Println(color.YellowString("Validating gateway configuration from %s", configFile))
		if err := r.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		fmt.Println(color.GreenString("Configuration is valid"))
		return nil
	}

	fmt.Println(color.GreenString("Starting payment gateway from %s", configFile))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("gateway failed: %w", err)
	}
	return nil
}
