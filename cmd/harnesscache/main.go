package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/harnesscache/cmd/harnesscache/commands"
	"git.home.luguber.info/inful/harnesscache/internal/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := commands.Execute(ctx, os.Args[1:], os.Stdout, version.String())
	cancel()
	os.Exit(code)
}
