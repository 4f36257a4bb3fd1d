package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "threadpost: %s\n", err)
		cancel()
		os.Exit(1)
	}
}
