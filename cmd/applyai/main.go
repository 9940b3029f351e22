// Command applyai is the terminal client for the ApplyAI backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/applyai-client/internal/cli"
)

// Set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	if err := cli.Execute(ctx); err != nil {
		stop()
		cli.Fatal(err)
	}
}
