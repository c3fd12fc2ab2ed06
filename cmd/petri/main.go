package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanwahyu/petri/internal/command"
)

func main() {
	// Ctrl-C stops polling; the index keeps the request id for the next run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.NewApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "petri: %v\n", err)
		stop()
		os.Exit(1)
	}
}
