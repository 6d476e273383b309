package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/timeline-crawler/pkg/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if client.IsTerminal(err) {
			log.Fatal().Err(err).Msg("Giving up")
		}
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}
