package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/errors"
	"github.com/wippyai/wasm-embed/wasm"
	"github.com/wippyai/wasm-embed/wat"
)

// Engine holds the compiled global settings every Store is created from.
// It is immutable and safe for concurrent use. Compiled code is shared
// between the stores of one engine through its compilation cache.
type Engine struct {
	runtimeConfig    wazero.RuntimeConfig
	cache            wazero.CompilationCache
	verify           *wasm.VerifyOptions
	callTimeout      time.Duration
	stores           atomic.Int64
	features         api.CoreFeatures
	memoryLimitPages uint32
	strategy         Strategy
	optLevel         OptLevel
	interfaceTypes   bool
	interruptible    bool
	hostAllocator    bool
	released         atomic.Bool
	// mu orders store registration against Close.
	mu sync.Mutex
}

// NewEngine builds an engine from the default configuration.
func NewEngine() (*Engine, error) {
	return NewEngineWithConfig(NewConfig())
}

// NewEngineWithConfig validates cfg and builds an engine from it. cfg is
// consumed whether or not construction succeeds.
func NewEngineWithConfig(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.Configuration("nil config")
	}
	if cfg.consumed {
		return nil, errors.Configuration("config already consumed by another engine")
	}
	cfg.consumed = true

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	features := coreFeatures(cfg)
	rc, err := runtimeConfigFor(cfg.strategy)
	if err != nil {
		return nil, err
	}
	rc = rc.WithCoreFeatures(features).WithDebugInfoEnabled(cfg.debugInfo)
	if cfg.memoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.memoryLimitPages)
	}
	if cfg.interruptible {
		rc = rc.WithCloseOnContextDone(true)
	}

	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, errors.New(errors.PhaseConfig, errors.KindConfiguration).
				Detail("invalid cache directory %q", cfg.cacheDir).
				Cause(err).
				Build()
		}
	} else {
		cache = wazero.NewCompilationCache()
	}
	rc = rc.WithCompilationCache(cache)

	e := &Engine{
		runtimeConfig:    rc,
		cache:            cache,
		callTimeout:      cfg.callTimeout,
		features:         features,
		memoryLimitPages: cfg.memoryLimitPages,
		strategy:         cfg.strategy,
		optLevel:         cfg.optLevel,
		interfaceTypes:   cfg.interfaceTypes,
		interruptible:    cfg.interruptible,
		hostAllocator:    cfg.hostAllocator,
	}
	if cfg.debugVerifier {
		e.verify = &wasm.VerifyOptions{
			MultiValue:     features.IsEnabled(api.CoreFeatureMultiValue),
			ReferenceTypes: features.IsEnabled(api.CoreFeatureReferenceTypes),
			BulkMemory:     features.IsEnabled(api.CoreFeatureBulkMemoryOperations),
			Threads:        features.IsEnabled(experimental.CoreFeaturesThreads),
		}
	}

	Logger().Debug("engine created",
		zap.Stringer("strategy", e.strategy),
		zap.Stringer("opt_level", e.optLevel),
		zap.Bool("interface_types", e.interfaceTypes),
		zap.Bool("interruptible", e.interruptible))
	return e, nil
}

func validateConfig(cfg *Config) error {
	if cfg.strategy > StrategyBaseline {
		return errors.Configuration("unknown strategy %d", uint8(cfg.strategy))
	}
	if cfg.optLevel > OptSpeedAndSize {
		return errors.Configuration("unknown optimization level %d", uint8(cfg.optLevel))
	}
	if cfg.referenceTypes && !cfg.bulkMemory {
		return errors.Configuration("reference types require bulk memory")
	}
	if cfg.threads && !cfg.bulkMemory {
		return errors.Configuration("threads require bulk memory")
	}
	if cfg.callTimeout < 0 {
		return errors.Configuration("negative call timeout %s", cfg.callTimeout)
	}
	if cfg.callTimeout > 0 && !cfg.interruptible {
		return errors.Configuration("call timeout requires an interruptible engine")
	}
	if cfg.optLevel != OptNone && cfg.strategy == StrategyBaseline {
		Logger().Warn("optimization level has no effect under the baseline strategy",
			zap.Stringer("opt_level", cfg.optLevel))
	}
	return nil
}

// compilerArchs lists the architectures the optimizing compiler targets.
var compilerArchs = map[string]bool{"amd64": true, "arm64": true}

func runtimeConfigFor(s Strategy) (wazero.RuntimeConfig, error) {
	switch s {
	case StrategyOptimizing:
		if !compilerArchs[runtime.GOARCH] {
			return nil, errors.Configuration("optimizing compiler unavailable on %s", runtime.GOARCH)
		}
		return wazero.NewRuntimeConfigCompiler(), nil
	case StrategyBaseline:
		return wazero.NewRuntimeConfigInterpreter(), nil
	}
	return wazero.NewRuntimeConfig(), nil
}

// coreFeatures maps the feature flags onto wazero features. Mutable
// globals, sign extension and saturating truncation are always on.
func coreFeatures(cfg *Config) api.CoreFeatures {
	f := api.CoreFeaturesV1 |
		api.CoreFeatureSignExtensionOps |
		api.CoreFeatureNonTrappingFloatToIntConversion
	if cfg.bulkMemory {
		f |= api.CoreFeatureBulkMemoryOperations
	}
	if cfg.multiValue || cfg.interfaceTypes {
		f |= api.CoreFeatureMultiValue
	}
	if cfg.referenceTypes {
		f |= api.CoreFeatureReferenceTypes
	}
	if cfg.simd {
		f |= api.CoreFeatureSIMD
	}
	if cfg.threads {
		f |= experimental.CoreFeaturesThreads
	}
	return f
}

// Features returns the effective core feature set.
func (e *Engine) Features() api.CoreFeatures { return e.features }

func (e *Engine) Strategy() Strategy { return e.strategy }

func (e *Engine) OptLevel() OptLevel { return e.optLevel }

// InterfaceTypes reports whether modules compiled under e get adapters.
func (e *Engine) InterfaceTypes() bool { return e.interfaceTypes }

// Stores returns the number of live stores.
func (e *Engine) Stores() int64 { return e.stores.Load() }

// Close releases the engine. It fails while stores created from it are
// alive.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil engine")
	}
	e.mu.Lock()
	if e.released.Load() {
		e.mu.Unlock()
		Logger().Error("engine released twice")
		return errors.Released("engine")
	}
	if n := e.stores.Load(); n > 0 {
		e.mu.Unlock()
		return errors.LiveChildren("engine", n, "store")
	}
	e.released.Store(true)
	e.mu.Unlock()
	Logger().Debug("engine closed")
	return e.cache.Close(ctx)
}

// acquireStore registers one more live store unless the engine has been
// released.
func (e *Engine) acquireStore() error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released.Load() {
		return errors.Released("engine")
	}
	e.stores.Add(1)
	return nil
}

func (e *Engine) check() error {
	if e == nil {
		return errors.Contract(errors.PhaseLifecycle, "nil engine")
	}
	if e.released.Load() {
		return errors.Released("engine")
	}
	return nil
}

// Wat2Wasm converts WebAssembly text to binary. It does not touch the
// engine's state and is safe for concurrent use. Syntax errors are returned
// as *wat.Error carrying the line and column.
func Wat2Wasm(e *Engine, src string) ([]byte, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return wat.Compile(src)
}
