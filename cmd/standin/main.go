// ABOUTME: Entry point for the standin agent daemon and its control CLI
// ABOUTME: Runs the root cobra command under a signal-aware context

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                  _ _
 ___| |_ __ _ _ __   __| (_)_ __
/ __| __/ _' | '_ \ / _' | | '_ \
\__ \ || (_| | | | | (_| | | | | |
|___/\__\__,_|_| |_|\__,_|_|_| |_|
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
