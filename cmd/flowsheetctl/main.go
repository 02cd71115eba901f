package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cmd "github.com/drfirst/go-flowsheet/cmd/flowsheetctl/cmd"
)

var (
	GitSHA string = "NA"
)

func main() {
	ctx, cnc := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cnc()
	if err := cmd.NewRoot(ctx, GitSHA).Execute(); err != nil {
		os.Exit(1)
	}
}
