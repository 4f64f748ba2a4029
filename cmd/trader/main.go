// Command trader runs the AI crypto trading pipeline as an HTTP service or one-shot CLI.
package main

import (
	"fmt"
	"os"

	"ai-trader/config"
	"ai-trader/observability"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLoggerWithOptions(observability.LogOptions{
		Production: cfg.Log.Production,
		Level:      observability.ParseLevel(cfg.Log.Level),
		FilePath:   cfg.Log.File,
	})
	observability.InitMetrics()

	if err := NewRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
