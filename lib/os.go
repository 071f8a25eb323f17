package lib

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// NotifyInterrupt returns a context that is cancelled on SIGINT or SIGTERM. A second signal
// terminates the process immediately.
func NotifyInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			log.Warn().Str("signal", sig.String()).Msg("interrupted, stopping")
			cancel()
		case <-ctx.Done():
			signal.Stop(c)
			return
		}
		sig := <-c
		log.Fatal().Str("signal", sig.String()).Msg("process interrupted")
	}()
	return ctx, cancel
}
