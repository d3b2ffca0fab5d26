// Package signals runs registered handlers when the process is asked to
// reload (SIGHUP) or shut down (SIGINT, SIGTERM).
package signals

import (
	"os"
	"os/signal"
	"sync"
)

// sigChan is buffered so a signal delivered before Handle runs is kept.
var sigChan = make(chan os.Signal, 1)

// Handler is called when a signal is received.
type Handler func()

var (
	mu           sync.Mutex
	reloaders    []Handler
	interrupters []Handler
	stopOnce     sync.Once
)

// RegisterReloadHandler registers f to run on SIGHUP. Nil is ignored.
func RegisterReloadHandler(f Handler) {
	register(&reloaders, f)
}

// RegisterInterruptHandler registers f to run on SIGINT or SIGTERM. Nil is ignored.
func RegisterInterruptHandler(f Handler) {
	register(&interrupters, f)
}

func register(list *[]Handler, f Handler) {
	if f == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	*list = append(*list, f)
}

func handleReload() {
	run("reload", &reloaders)
}

func handleInterrupted() {
	run("interrupt", &interrupters)
}

// run calls a snapshot of the handlers in registration order. A panicking
// handler is logged and does not stop the others.
func run(kind string, list *[]Handler) {
	mu.Lock()
	snapshot := append([]Handler(nil), (*list)...)
	mu.Unlock()

	log.WithField("handlers", len(snapshot)).Debug("Running " + kind + " handlers")
	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Error("Panic in " + kind + " handler")
				}
			}()
			h()
		}()
	}
}

// StopHandle makes Handle return. Only the first call has an effect.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
