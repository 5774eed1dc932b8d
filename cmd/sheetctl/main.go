package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"catalogpanel/internal/cli"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx, cli.Options{}, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}
