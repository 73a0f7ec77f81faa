// Command complaints runs the complaint tracker API.
//
// @title       Complaint Tracker API
// @version     1.0
// @description Files complaints, tracks their status and collects comments.
// @BasePath    /api
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tbourn/go-complaint-backend/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd(version)
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
