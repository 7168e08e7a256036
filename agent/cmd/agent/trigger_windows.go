//go:build windows

package main

import "os"

// manualTrigger never fires on Windows, which has no SIGUSR1. Use -once.
func manualTrigger() <-chan os.Signal {
	return nil
}
