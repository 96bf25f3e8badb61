// File: cmd/pageshot/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/pageshot-cli/cmd"
	"github.com/xkilldash9x/pageshot-cli/internal/observability"
)

// osExit is swapped out in tests.
var osExit = os.Exit

func main() {
	// Ctrl+C or SIGTERM cancels the run context; the command turns that into
	// a graceful abort.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Execute(ctx)

	stop()
	observability.Sync()
	osExit(exitCode(err))
}

// exitCode maps the command error to a process exit status. A run aborted by
// the user's own signal exits cleanly; every other failure, including a
// partially failed capture, is nonzero.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}
