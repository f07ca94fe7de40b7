package engine

import (
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/transcoder"
)

// Adapter calls a function export through its interface signature. It
// shares the callable of the export's Func and marshals values between host
// form and the core calling convention.
type Adapter struct {
	fn   *Func
	plan *callPlan
	// post releases guest memory backing the results, if the module exports it.
	post api.Function
}

// Signature returns the interface signature.
func (a *Adapter) Signature() *transcoder.Signature { return a.plan.sig }

// Func returns the core function the adapter wraps.
func (a *Adapter) Func() *Func { return a.fn }

// Call lowers args into the instance, invokes the export and lifts its
// results into host values.
//
// A wrong argument count or kind is returned as *errors.Error. Every other
// failure is a *Trap: guest traps keep their code, marshalling failures use
// TrapMarshal with the structured error as cause. Lifted strings are copies
// and never alias guest memory.
func (a *Adapter) Call(ctx context.Context, args ...wasmembed.Val) ([]wasmembed.Val, error) {
	if a == nil {
		return nil, errors.Contract(errors.PhaseCall, "nil adapter")
	}
	ext := a.fn.ext
	if err := ext.check(); err != nil {
		return nil, err
	}
	sig := a.plan.sig
	if len(args) != len(sig.Params) {
		return nil, errors.Arity(errors.PhaseCall, "arguments", len(sig.Params), len(args))
	}

	inst := ext.owner
	var mem wasmembed.Memory
	if inst.mem != nil {
		mem = &guestMemory{mem: inst.mem}
	} else if a.plan.memory {
		return nil, marshalTrap(errors.NotFound(errors.PhaseCall, "memory export", "memory"))
	}

	store := ext.store
	callCtx, done := store.callContext(ctx)
	defer done()

	if ga, ok := inst.alloc.(*guestAllocator); ok {
		ga.setContext(callCtx)
		defer ga.setContext(nil)
	}

	allocs := transcoder.NewAllocationList()
	defer allocs.Release()

	stack, err := a.lower(mem, inst.alloc, allocs, args)
	if err != nil {
		allocs.Free(inst.alloc)
		if isContract(err) {
			return nil, err
		}
		if hostErr := store.takeHostErr(); hostErr != nil {
			return nil, trapFromError(err, hostErr, TrapMarshal)
		}
		return nil, marshalTrap(err)
	}

	out, err := a.fn.fn.Call(callCtx, stack...)
	if err != nil {
		trap := trapFromError(err, store.takeHostErr(), TrapUnknown)
		Logger().Debug("adapter call trapped",
			zap.String("func", ext.name),
			zap.Stringer("code", trap.Code()),
			zap.String("message", trap.Message()))
		return nil, trap
	}

	results, err := a.lift(mem, out)
	if err != nil {
		if a.post != nil {
			if _, perr := a.post.Call(callCtx, out...); perr != nil {
				Logger().Warn("post-return failed after lift error",
					zap.String("func", ext.name),
					zap.Error(perr))
			}
		}
		return nil, marshalTrap(err)
	}

	if a.post != nil {
		if _, err := a.post.Call(callCtx, out...); err != nil {
			return nil, trapFromError(err, store.takeHostErr(), TrapUnknown)
		}
	}
	return results, nil
}

func (a *Adapter) lower(mem wasmembed.Memory, alloc wasmembed.Allocator, allocs *transcoder.AllocationList, args []wasmembed.Val) ([]uint64, error) {
	lw := transcoder.NewLowerer(mem, alloc, allocs)
	if !a.plan.spill {
		return lw.LowerFlat(a.plan.sig.Params, args)
	}
	ptr, err := lw.SpillArgs(a.plan.sig.Params, args)
	if err != nil {
		return nil, err
	}
	return []uint64{uint64(ptr)}, nil
}

func (a *Adapter) lift(mem wasmembed.Memory, out []uint64) ([]wasmembed.Val, error) {
	lf := transcoder.NewLifter(mem)
	if a.plan.retptr {
		return lf.LiftFromMemory(a.plan.results, uint32(out[0]))
	}
	return lf.LiftFlat(a.plan.results, out)
}

// isContract reports whether a lowering error is the caller's fault rather
// than a marshalling failure.
func isContract(err error) bool {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == errors.KindTypeMismatch || e.Kind == errors.KindArity
}

func marshalTrap(err error) *Trap {
	return newTrap(TrapMarshal, err.Error(), err)
}
