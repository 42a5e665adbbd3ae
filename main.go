package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/paymesh/payment-pipeline-workflow/internal/cli/runner"
)

func main() {
	// Define command line flags
	configFile := flag.String("config", "gateway_config.yaml", "Path to gateway configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	r := runner.New(runner.Options{ConfigFile: *configFile})
	if err := r.Run(ctx); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}

	log.Printf("Gateway stopped.")
}
