package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SetupSignalHandler returns a context that is canceled on SIGINT or SIGTERM.
// A second signal exits the process with status 130. stop releases the
// handler and cancels the context. A nil parent means context.Background.
func SetupSignalHandler(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigChan:
			os.Exit(130)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
		})
	}
}
