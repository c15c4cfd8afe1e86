//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals cancel a running command. SIGTERM is what process
// managers and container runtimes send.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
