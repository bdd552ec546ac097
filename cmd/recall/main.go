package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harun/recall/internal/cli"
	"github.com/harun/recall/internal/tracing"
)

func main() {
	err := cli.Execute()

	// Flush spans exported during the command
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	tracing.ShutdownOpenTelemetry(ctx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
