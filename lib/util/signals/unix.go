//go:build !windows

package signals

import (
	"os"
	"os/signal"
	"syscall"
)

func init() {
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
}

// Handle dispatches signals until StopHandle is called.
func Handle() {
	for sig := range sigChan {
		dispatch(sig)
	}
}

func dispatch(sig os.Signal) {
	switch sig {
	case syscall.SIGHUP:
		handleReload()
	case syscall.SIGINT, syscall.SIGTERM:
		handleInterrupted()
	}
}
