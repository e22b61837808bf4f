// Package server drains in-flight gRPC calls and releases resources when
// partwise shuts down.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

// ShutdownConfig bounds how long shutdown may take.
type ShutdownConfig struct {
	// ShutdownTimeout caps the whole shutdown, closers included.
	ShutdownTimeout time.Duration

	// DrainTimeout caps the wait for in-flight calls.
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns a 30s shutdown with a 15s drain.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// ShutdownManager stops accepting calls, waits for the running ones and
// then closes registered resources, last registered first.
type ShutdownManager struct {
	cfg ShutdownConfig

	mu       sync.Mutex
	calls    int
	draining bool
	idle     chan struct{} // closed once draining with no calls left
	closers  []io.Closer
	onStart  []func()
	onEnd    []func()

	once sync.Once
	done chan struct{}
}

// NewShutdownManager creates a shutdown manager. Zero timeouts take the
// defaults.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	def := DefaultShutdownConfig()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	return &ShutdownManager{
		cfg:  cfg,
		idle: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// RegisterCloser adds a resource to close on shutdown.
func (sm *ShutdownManager) RegisterCloser(c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, c)
}

// OnShutdownStart registers fn to run once calls stop being accepted.
func (sm *ShutdownManager) OnShutdownStart(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStart = append(sm.onStart, fn)
}

// OnShutdownEnd registers fn to run after every closer.
func (sm *ShutdownManager) OnShutdownEnd(fn func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnd = append(sm.onEnd, fn)
}

// BeginCall admits a call. It returns false once shutdown has begun;
// otherwise the returned func must be called when the call finishes.
func (sm *ShutdownManager) BeginCall() (func(), bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return nil, false
	}
	sm.calls++

	var once sync.Once
	return func() { once.Do(sm.endCall) }, true
}

func (sm *ShutdownManager) endCall() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.calls--
	if sm.draining && sm.calls == 0 {
		close(sm.idle)
	}
}

// InFlight returns the number of admitted calls still running.
func (sm *ShutdownManager) InFlight() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.calls
}

// ShutdownCh is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.done
}

// ListenForSignals blocks until SIGINT, SIGTERM, ctx ending or another
// caller's Shutdown, and shuts down in the first two cases.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		reason := "received signal"
		if ctx.Err() != nil {
			reason = "context cancelled"
		}
		// Draining must not be cut short because ctx already ended.
		return sm.Shutdown(context.WithoutCancel(ctx), reason)
	case <-sm.done:
		return nil
	}
}

// Shutdown runs once: it rejects new calls, runs start hooks, drains,
// closes resources in reverse registration order and runs end hooks.
// Later calls return nil immediately.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var err error
	sm.once.Do(func() {
		sm.mu.Lock()
		sm.draining = true
		inFlight := sm.calls
		if inFlight == 0 {
			close(sm.idle)
		}
		closers := slices.Clone(sm.closers)
		onStart, onEnd := slices.Clone(sm.onStart), slices.Clone(sm.onEnd)
		sm.mu.Unlock()
		close(sm.done)

		log.Printf("server: shutting down (%s), %d calls in flight", reason, inFlight)
		for _, fn := range onStart {
			fn()
		}

		ctx, cancel := context.WithTimeout(ctx, sm.cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if drainErr := sm.drain(ctx); drainErr != nil {
			errs = append(errs, drainErr)
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if closeErr := closers[i].Close(); closeErr != nil {
				errs = append(errs, fmt.Errorf("server: close failed: %w", closeErr))
			}
		}

		for _, fn := range onEnd {
			fn()
		}
		err = errors.Join(errs...)
	})
	return err
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	timer := time.NewTimer(sm.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-sm.idle:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	return fmt.Errorf("server: drain timed out with %d calls in flight", sm.InFlight())
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }
