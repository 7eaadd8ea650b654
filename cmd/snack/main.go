package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/snackboard/internal/cli"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM; watch runs until then.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	// Commands report their own failures; usage and flag errors are not.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		os.Stderr.WriteString("snack: " + err.Error() + "\n")
	}
	os.Exit(cli.GetExitCode(err))
}
