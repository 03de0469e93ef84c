package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// ShutdownManager turns SIGTERM and SIGINT into a cancelled run and closes
// registered resources once the run is over.
type ShutdownManager struct {
	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	isShuttingDown atomic.Bool

	// Closers to clean up on Close
	closers   []io.Closer
	closersMu sync.Mutex

	onShutdownStart []func()
	callbacksMu     sync.Mutex
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{shutdownCh: make(chan struct{})}
}

// RegisterCloser adds a closer to be called by Close.
// Closers are called in reverse order of registration (LIFO).
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// OnShutdownStart registers a callback to be called when shutdown begins.
func (sm *ShutdownManager) OnShutdownStart(fn func()) {
	sm.callbacksMu.Lock()
	defer sm.callbacksMu.Unlock()
	sm.onShutdownStart = append(sm.onShutdownStart, fn)
}

// ListenForSignals blocks until SIGTERM or SIGINT arrives, ctx is done or
// Shutdown is called. A signal starts shutdown.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		sm.Shutdown("received signal: " + sig.String())
	case <-ctx.Done():
	case <-sm.shutdownCh:
	}
}

// Shutdown starts shutdown with the given reason. Only the first call has
// an effect.
func (sm *ShutdownManager) Shutdown(reason string) {
	sm.shutdownOnce.Do(func() {
		sm.isShuttingDown.Store(true)
		close(sm.shutdownCh)
		log.WithField("reason", reason).Warn("stopping after the current iteration")

		sm.callbacksMu.Lock()
		callbacks := sm.onShutdownStart
		sm.callbacksMu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	})
}

// Close calls every registered closer in reverse order and forgets them.
// It returns the first error.
func (sm *ShutdownManager) Close() error {
	sm.closersMu.Lock()
	closers := sm.closers
	sm.closers = nil
	sm.closersMu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.isShuttingDown.Load()
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
