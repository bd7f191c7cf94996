// Command bigcsv transposes delimited files that do not fit in memory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jlehrer1/big-csv/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
