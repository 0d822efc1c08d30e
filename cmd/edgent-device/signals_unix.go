//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/muurk/edgent/internal/logging"
	"github.com/muurk/edgent/internal/state"
	"go.uber.org/zap"
)

// handleSignals maps SIGUSR1 to a configuration reset and SIGUSR2 to the
// "button held" input.
func (d *device) handleSignals(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			rc := d.rc.Load()
			if rc == nil {
				continue
			}
			switch sig {
			case syscall.SIGUSR1:
				logging.Info("Configuration reset requested")
				rc.SetMode(state.ResetConfig)
			case syscall.SIGUSR2:
				held := !rc.ButtonHeld()
				rc.SetButtonHeld(held)
				logging.Info("Button input", zap.Bool("held", held))
			}
		}
	}
}
