package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/wasm"
)

// guestAllocator implements wasmembed.Allocator using exported functions
type guestAllocator struct {
	allocFn    api.Function
	freeFn     api.Function
	currentCtx context.Context
	stackBuf   []uint64
	allocArgs  int
	freeArgs   int
}

// probeAllocator finds the allocator an instance exports. It tries the
// standard cabi_realloc first, then the legacy names. It returns nil when
// the instance exports none.
func probeAllocator(mod api.Module) *guestAllocator {
	defs := mod.ExportedFunctionDefinitions()
	a := &guestAllocator{stackBuf: make([]uint64, 4)}

	for _, name := range []string{CabiRealloc, legacyRealloc, legacyAlloc, simpleAlloc} {
		def, ok := defs[name]
		if !ok || len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != api.ValueTypeI32 {
			continue
		}
		switch n := len(def.ParamTypes()); n {
		case 1, 2, 4:
			a.allocFn = mod.ExportedFunction(name)
			a.allocArgs = n
		}
		if a.allocFn != nil {
			break
		}
	}
	if a.allocFn == nil {
		return nil
	}

	for _, name := range []string{CabiFree, legacyDealloc, simpleFree} {
		def, ok := defs[name]
		if !ok || len(def.ResultTypes()) != 0 {
			continue
		}
		if n := len(def.ParamTypes()); n >= 1 && n <= 3 {
			a.freeFn = mod.ExportedFunction(name)
			a.freeArgs = n
			break
		}
	}
	return a
}

func (a *guestAllocator) setContext(ctx context.Context) {
	a.currentCtx = ctx
}

func (a *guestAllocator) context() context.Context {
	if a.currentCtx == nil {
		return context.Background()
	}
	return a.currentCtx
}

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	switch a.allocArgs {
	case 1:
		a.stackBuf[0] = uint64(size)
	case 2:
		a.stackBuf[0] = uint64(size)
		a.stackBuf[1] = uint64(align)
	default:
		a.stackBuf[0] = 0
		a.stackBuf[1] = 0
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = uint64(size)
	}
	if err := a.allocFn.CallWithStack(a.context(), a.stackBuf[:a.allocArgs]); err != nil {
		return 0, err
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	a.stackBuf[2] = uint64(align)
	if err := a.freeFn.CallWithStack(a.context(), a.stackBuf[:a.freeArgs]); err != nil {
		Logger().Warn("free: guest deallocation failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// hostAllocator is the engine-provided fallback for instances without an
// allocator export. It grows linear memory for every allocation and never
// frees.
type hostAllocator struct {
	mem api.Memory
}

func (a *hostAllocator) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	base := a.mem.Size()
	if align > 1 {
		base = (base + align - 1) &^ (align - 1)
	}
	end := uint64(base) + uint64(size)
	pages := (end - uint64(a.mem.Size()) + wasm.PageSize - 1) / wasm.PageSize
	if pages > 0 {
		if _, ok := a.mem.Grow(uint32(pages)); !ok {
			return 0, fmt.Errorf("cannot grow memory by %d pages", pages)
		}
	}
	return base, nil
}

func (a *hostAllocator) Free(ptr, size, align uint32) {}

var (
	_ wasmembed.Allocator = (*guestAllocator)(nil)
	_ wasmembed.Allocator = (*hostAllocator)(nil)
)
