//go:build windows

package main

import "os"

// shutdownSignals cancel a running command. Windows has no SIGTERM; the
// runtime maps CTRL_BREAK_EVENT and console close to os.Interrupt.
var shutdownSignals = []os.Signal{os.Interrupt}
