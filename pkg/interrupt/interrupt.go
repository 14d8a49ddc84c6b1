// Package interrupt runs registered cleanup handlers on SIGINT or on a
// programmatic shutdown request, in LIFO order, exactly once.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/culturebridge/nomadstr/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

var (
	mu        sync.Mutex
	handlers  []func()
	requested atomic.Bool
	listening bool

	sigCh     = make(chan os.Signal, 1)
	requestCh = make(chan struct{}, 1)

	// Done is closed after every handler has run.
	Done = make(chan struct{})
)

func listener() {
	select {
	case sig := <-sigCh:
		log.D.F("received %v signal", sig)
	case <-requestCh:
		log.D.Ln("shutdown requested")
	}
	requested.Store(true)
	mu.Lock()
	hs := handlers
	handlers = nil
	mu.Unlock()
	for i := len(hs) - 1; i >= 0; i-- {
		hs[i]()
	}
	close(Done)
}

// AddHandler registers a cleanup function for shutdown. The first call
// starts the signal listener.
func AddHandler(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	if !listening {
		listening = true
		signal.Notify(sigCh, os.Interrupt)
		go listener()
	}
	handlers = append(handlers, fn)
}

// Request triggers the shutdown sequence without a signal.
func Request() {
	if requested.Load() {
		return
	}
	select {
	case requestCh <- struct{}{}:
	default:
	}
}

// Requested reports whether a shutdown is underway.
func Requested() bool { return requested.Load() }
