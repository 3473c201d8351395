package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownConfig controls how Serve drains in-flight messages once it stops
// reading.
type ShutdownConfig struct {
	// Timeout bounds the drain. Zero means 30 seconds.
	Timeout time.Duration

	// OnShutdownStart runs when the drain begins.
	OnShutdownStart func()

	// OnShutdownComplete runs when the drain ends, with the drain error.
	OnShutdownComplete func(err error)
}

// DefaultShutdownConfig returns a config with a 30 second drain.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 30 * time.Second,
	}
}

// ShutdownManager counts messages being handled and waits for them when the
// transport stops. Once draining, it refuses new messages.
type ShutdownManager struct {
	config ShutdownConfig

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	inFlight atomic.Int64

	drained   chan struct{}
	drainOnce sync.Once
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewShutdownManager returns a manager for cfg.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		config:  cfg,
		drained: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// IsDraining reports whether Shutdown has been called.
func (sm *ShutdownManager) IsDraining() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.draining
}

// InFlight returns the number of messages still being handled.
func (sm *ShutdownManager) InFlight() int64 {
	return sm.inFlight.Load()
}

// Track registers a message. It returns false when draining, in which case
// the message must be dropped and Complete must not be called.
func (sm *ShutdownManager) Track() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.wg.Add(1)
	sm.inFlight.Add(1)
	return true
}

// Complete marks a tracked message as handled.
func (sm *ShutdownManager) Complete() {
	sm.inFlight.Add(-1)
	sm.wg.Done()
}

// Shutdown stops accepting messages and waits for tracked ones, for at most
// the configured timeout or until ctx ends. Messages still running when it
// gives up keep running; their count stays visible through InFlight.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	sm.mu.Lock()
	sm.draining = true
	sm.mu.Unlock()

	sm.drainOnce.Do(func() {
		go func() {
			sm.wg.Wait()
			close(sm.drained)
		}()
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
	defer cancel()

	var err error
	select {
	case <-sm.drained:
	case <-timeoutCtx.Done():
		err = timeoutCtx.Err()
	}

	sm.closeOnce.Do(func() {
		close(sm.doneCh)
	})

	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete(err)
	}
	return err
}

// Done is closed once Shutdown has returned for the first time.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.doneCh
}
