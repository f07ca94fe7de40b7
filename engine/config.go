package engine

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Strategy selects the compilation backend. The numeric values are part of
// the C-shaped surface and must not change.
type Strategy uint8

const (
	// StrategyAuto lets the engine pick the backend for the platform.
	StrategyAuto Strategy = 0
	// StrategyOptimizing selects the optimizing compiler.
	StrategyOptimizing Strategy = 1
	// StrategyBaseline selects the baseline tier, which interprets.
	StrategyBaseline Strategy = 2
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyOptimizing:
		return "optimizing"
	case StrategyBaseline:
		return "baseline"
	}
	return "strategy(" + strconv.Itoa(int(s)) + ")"
}

// ParseStrategy maps a name as printed by String back to a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "auto", "":
		return StrategyAuto, true
	case "optimizing", "cranelift":
		return StrategyOptimizing, true
	case "baseline", "lightbeam":
		return StrategyBaseline, true
	}
	return 0, false
}

// OptLevel is the optimization level of the optimizing compiler.
type OptLevel uint8

const (
	OptNone         OptLevel = 0
	OptSpeed        OptLevel = 1
	OptSpeedAndSize OptLevel = 2
)

func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptSpeed:
		return "speed"
	case OptSpeedAndSize:
		return "speed_and_size"
	}
	return "opt_level(" + strconv.Itoa(int(o)) + ")"
}

// ParseOptLevel maps a name as printed by String back to an OptLevel.
func ParseOptLevel(s string) (OptLevel, bool) {
	switch s {
	case "none", "":
		return OptNone, true
	case "speed":
		return OptSpeed, true
	case "speed_and_size", "speed-and-size":
		return OptSpeedAndSize, true
	}
	return 0, false
}

// Config is the mutable set of options an Engine is built from.
//
// Setters never fail. Invalid combinations and unknown enum values are
// reported by NewEngineWithConfig, which consumes the Config: later setter
// calls are logged and ignored, and passing it to another engine fails.
type Config struct {
	cacheDir         string
	callTimeout      time.Duration
	memoryLimitPages uint32
	strategy         Strategy
	optLevel         OptLevel
	debugInfo        bool
	threads          bool
	referenceTypes   bool
	interfaceTypes   bool
	simd             bool
	bulkMemory       bool
	multiValue       bool
	debugVerifier    bool
	interruptible    bool
	hostAllocator    bool
	consumed         bool
}

// NewConfig returns a Config with the WebAssembly 2.0 feature set enabled
// and every optional extension off.
func NewConfig() *Config {
	return &Config{
		referenceTypes: true,
		simd:           true,
		bulkMemory:     true,
		multiValue:     true,
	}
}

// set applies fn unless the config was already consumed.
func (c *Config) set(name string, fn func()) {
	if c.consumed {
		Logger().Warn("config already consumed by an engine, setting ignored",
			zap.String("setting", name))
		return
	}
	fn()
}

func (c *Config) SetDebugInfo(v bool) { c.set("debug_info", func() { c.debugInfo = v }) }

func (c *Config) SetThreads(v bool) { c.set("threads", func() { c.threads = v }) }

func (c *Config) SetReferenceTypes(v bool) {
	c.set("reference_types", func() { c.referenceTypes = v })
}

// SetInterfaceTypes enables adapters for exports described by an
// "interface-types" custom section. It implies multi-value.
func (c *Config) SetInterfaceTypes(v bool) {
	c.set("interface_types", func() { c.interfaceTypes = v })
}

func (c *Config) SetSIMD(v bool) { c.set("simd", func() { c.simd = v }) }

func (c *Config) SetBulkMemory(v bool) { c.set("bulk_memory", func() { c.bulkMemory = v }) }

func (c *Config) SetMultiValue(v bool) { c.set("multi_value", func() { c.multiValue = v }) }

func (c *Config) SetStrategy(s Strategy) { c.set("strategy", func() { c.strategy = s }) }

func (c *Config) SetOptLevel(o OptLevel) { c.set("opt_level", func() { c.optLevel = o }) }

// SetDebugVerifier runs the structural module verifier on every compile.
func (c *Config) SetDebugVerifier(v bool) {
	c.set("debug_verifier", func() { c.debugVerifier = v })
}

// SetMemoryLimitPages caps every linear memory at n 64KiB pages. 0 keeps the
// 4GiB default.
func (c *Config) SetMemoryLimitPages(n uint32) {
	c.set("memory_limit_pages", func() { c.memoryLimitPages = n })
}

// SetCacheDir persists compiled code in dir across engines and processes.
func (c *Config) SetCacheDir(dir string) { c.set("cache_dir", func() { c.cacheDir = dir }) }

// SetInterruptible lets Store interrupt handles and call timeouts stop
// running guest code. Without it a call runs until it returns or traps.
func (c *Config) SetInterruptible(v bool) {
	c.set("interruptible", func() { c.interruptible = v })
}

// SetCallTimeout bounds every call into the guest. It requires
// SetInterruptible(true).
func (c *Config) SetCallTimeout(d time.Duration) {
	c.set("call_timeout", func() { c.callTimeout = d })
}

// SetHostAllocator makes adapters fall back to an engine-provided allocator
// for instances that export none. The fallback grows linear memory and never
// reuses it.
func (c *Config) SetHostAllocator(v bool) {
	c.set("host_allocator", func() { c.hostAllocator = v })
}

// Consumed reports whether an engine has been built from c.
func (c *Config) Consumed() bool { return c.consumed }
