package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/feed2mastodon/internal/cli"
	"github.com/ppiankov/feed2mastodon/internal/publish"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var pe *publish.PublishError
	if cli.Verbose() && errors.As(err, &pe) && pe.Detail != "" {
		fmt.Fprintf(os.Stderr, "upstream response: %s\n", pe.Detail)
	}
	os.Exit(1)
}
