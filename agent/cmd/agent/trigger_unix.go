//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// manualTrigger delivers SIGUSR1.
func manualTrigger() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	return ch
}
