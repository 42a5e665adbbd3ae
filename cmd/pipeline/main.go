package main

import (
	"log"

	"github.com/paymesh/payment-pipeline-workflow/internal/cli/cmd"
)

// Build-time version information, injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildDate)
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
