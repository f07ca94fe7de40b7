package engine

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/errors"
)

// Store is an isolated execution arena created from an Engine. Modules,
// instances and host externs created in a store live in its runtime.
//
// A Store and everything it owns must be used from one goroutine at a time.
// The InterruptHandle is the exception.
type Store struct {
	engine    *Engine
	runtime   wazero.Runtime
	interrupt *InterruptHandle
	// hostErr is the error raised by a host function during the current call.
	hostErr     error
	modules     atomic.Int64
	instances   atomic.Int64
	hostExterns atomic.Int64
	seq         uint64
	released    bool
}

// NewStore creates a store owned by e.
func NewStore(ctx context.Context, e *Engine) (*Store, error) {
	if err := e.acquireStore(); err != nil {
		return nil, err
	}
	s := &Store{
		engine:  e,
		runtime: wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig),
	}
	if e.interruptible {
		s.interrupt = &InterruptHandle{calls: make(map[uint64]context.CancelFunc)}
	}
	Logger().Debug("store created", zap.Int64("live_stores", e.stores.Load()))
	return s, nil
}

// Engine returns the engine the store was created from.
func (s *Store) Engine() *Engine { return s.engine }

// Modules returns the number of live modules compiled in the store.
func (s *Store) Modules() int64 { return s.modules.Load() }

// Instances returns the number of live instances in the store.
func (s *Store) Instances() int64 { return s.instances.Load() }

// HostExterns returns the number of host functions, memories, globals and
// tables created in the store.
func (s *Store) HostExterns() int64 { return s.hostExterns.Load() }

// InterruptHandle returns the handle that stops running calls. It fails
// unless the engine is interruptible.
func (s *Store) InterruptHandle() (*InterruptHandle, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.interrupt == nil {
		return nil, errors.Contract(errors.PhaseCall, "engine is not interruptible")
	}
	return s.interrupt, nil
}

// Close releases the store and every host extern created in it. It fails
// while modules or instances are alive.
func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil store")
	}
	if s.released {
		Logger().Error("store released twice")
		return errors.Released("store")
	}
	if n := s.instances.Load(); n > 0 {
		return errors.LiveChildren("store", n, "instance")
	}
	if n := s.modules.Load(); n > 0 {
		return errors.LiveChildren("store", n, "module")
	}
	s.released = true
	s.engine.stores.Add(-1)
	Logger().Debug("store closed", zap.Int64("host_externs", s.hostExterns.Load()))
	return s.runtime.Close(ctx)
}

func (s *Store) check() error {
	if s == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil store")
	}
	if s.released {
		return errors.Released("store")
	}
	return nil
}

// nextName returns a runtime-unique module name with the given prefix.
func (s *Store) nextName(prefix string) string {
	s.seq++
	return prefix + "-" + strconv.FormatUint(s.seq, 10)
}

// callContext prepares ctx for one call into the guest. The returned
// function must be called when the call finishes.
func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.hostErr = nil

	cancels := make([]context.CancelFunc, 0, 2)
	if s.engine.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.engine.callTimeout)
		cancels = append(cancels, cancel)
	}
	if s.interrupt != nil {
		var done context.CancelFunc
		ctx, done = s.interrupt.track(ctx)
		cancels = append(cancels, done)
	}
	return ctx, func() {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
	}
}

// takeHostErr returns and clears the pending host function error.
func (s *Store) takeHostErr() error {
	err := s.hostErr
	s.hostErr = nil
	return err
}

// InterruptHandle stops calls running in a store. It is safe for
// concurrent use, including while a call is in progress.
//
// An interrupted call returns a Trap with code TrapInterrupt. The runtime
// closes the instance that was interrupted, so later calls into it trap the
// same way.
type InterruptHandle struct {
	calls map[uint64]context.CancelFunc
	next  uint64
	mu    sync.Mutex
}

// Interrupt cancels every call currently running in the store.
func (h *InterruptHandle) Interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cancel := range h.calls {
		cancel()
		delete(h.calls, id)
	}
}

// Running returns the number of calls that can be interrupted.
func (h *InterruptHandle) Running() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *InterruptHandle) track(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	id := h.next
	h.next++
	h.calls[id] = cancel
	h.mu.Unlock()

	return ctx, func() {
		h.mu.Lock()
		delete(h.calls, id)
		h.mu.Unlock()
		cancel()
	}
}
