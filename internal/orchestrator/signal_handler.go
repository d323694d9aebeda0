// Package orchestrator runs the portal's processes and stops them on SIGINT
// or SIGTERM.
package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// SignalHandler cancels a context on the first shutdown signal and exits on
// the second.
type SignalHandler struct {
	sigChan chan os.Signal
	exit    func(code int)
}

func NewSignalHandler() *SignalHandler {
	sh := &SignalHandler{
		sigChan: make(chan os.Signal, 2),
		exit:    os.Exit,
	}
	signal.Notify(sh.sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sh
}

// HandleSignals waits in the background until a signal arrives or ctx is done
func (sh *SignalHandler) HandleSignals(ctx context.Context, cancel context.CancelFunc) {
	go func() {
		defer signal.Stop(sh.sigChan)
		select {
		case sig := <-sh.sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sh.sigChan
		log.Warn().Str("signal", sig.String()).Msg("Second signal, exiting immediately")
		sh.exit(1)
	}()
}
