// Command wires builds slot containers from CUE manifests, invokes them,
// runs scenario suites and reads back the dispatch journal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/wires/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "wires: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
