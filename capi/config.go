package capi

import (
	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/resource"
)

// ConfigNew creates a configuration with default settings.
func ConfigNew() Config {
	return Config(insert(configs, engine.NewConfig()))
}

// ConfigDelete releases a configuration that was never passed to
// EngineNewWithConfig.
func ConfigDelete(c Config) error {
	_, err := configs.Remove(resource.Handle(c))
	if err != nil {
		staleHandle("config delete", err)
	}
	return err
}

// setConfig applies fn to the configuration behind c. Setters have no
// failure channel, so a stale handle is only logged.
func setConfig(c Config, op string, fn func(*engine.Config)) {
	cfg, err := configs.Get(resource.Handle(c))
	if err != nil {
		staleHandle(op, err)
		return
	}
	fn(cfg)
}

func ConfigDebugInfoSet(c Config, v bool) {
	setConfig(c, "debug info", func(cfg *engine.Config) { cfg.SetDebugInfo(v) })
}

func ConfigWasmThreadsSet(c Config, v bool) {
	setConfig(c, "threads", func(cfg *engine.Config) { cfg.SetThreads(v) })
}

func ConfigWasmReferenceTypesSet(c Config, v bool) {
	setConfig(c, "reference types", func(cfg *engine.Config) { cfg.SetReferenceTypes(v) })
}

func ConfigWasmInterfaceTypesSet(c Config, v bool) {
	setConfig(c, "interface types", func(cfg *engine.Config) { cfg.SetInterfaceTypes(v) })
}

func ConfigWasmSIMDSet(c Config, v bool) {
	setConfig(c, "simd", func(cfg *engine.Config) { cfg.SetSIMD(v) })
}

func ConfigWasmBulkMemorySet(c Config, v bool) {
	setConfig(c, "bulk memory", func(cfg *engine.Config) { cfg.SetBulkMemory(v) })
}

func ConfigWasmMultiValueSet(c Config, v bool) {
	setConfig(c, "multi value", func(cfg *engine.Config) { cfg.SetMultiValue(v) })
}

// ConfigStrategySet takes the raw strategy encoding: 0 auto, 1 optimizing,
// 2 baseline. Unknown values are rejected by EngineNewWithConfig.
func ConfigStrategySet(c Config, s uint8) {
	setConfig(c, "strategy", func(cfg *engine.Config) { cfg.SetStrategy(engine.Strategy(s)) })
}

// ConfigCraneliftOptLevelSet takes the raw level encoding: 0 none, 1 speed,
// 2 speed and size. Unknown values are rejected by EngineNewWithConfig.
func ConfigCraneliftOptLevelSet(c Config, o uint8) {
	setConfig(c, "opt level", func(cfg *engine.Config) { cfg.SetOptLevel(engine.OptLevel(o)) })
}

func ConfigCraneliftDebugVerifierSet(c Config, v bool) {
	setConfig(c, "debug verifier", func(cfg *engine.Config) { cfg.SetDebugVerifier(v) })
}

func ConfigInterruptibleSet(c Config, v bool) {
	setConfig(c, "interruptible", func(cfg *engine.Config) { cfg.SetInterruptible(v) })
}

func ConfigHostAllocatorSet(c Config, v bool) {
	setConfig(c, "host allocator", func(cfg *engine.Config) { cfg.SetHostAllocator(v) })
}
