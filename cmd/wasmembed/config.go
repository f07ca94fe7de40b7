package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-embed/engine"
)

// fileConfig is the YAML form of an engine configuration. Unset fields keep
// the engine defaults.
type fileConfig struct {
	Strategy       string        `yaml:"strategy"`
	OptLevel       string        `yaml:"opt_level"`
	CacheDir       string        `yaml:"cache_dir"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MemoryPages    uint32        `yaml:"memory_limit_pages"`
	DebugInfo      *bool         `yaml:"debug_info"`
	DebugVerifier  *bool         `yaml:"debug_verifier"`
	Interruptible  *bool         `yaml:"interruptible"`
	HostAllocator  *bool         `yaml:"host_allocator"`
	InterfaceTypes *bool         `yaml:"interface_types"`
	Features       struct {
		Threads        *bool `yaml:"threads"`
		ReferenceTypes *bool `yaml:"reference_types"`
		SIMD           *bool `yaml:"simd"`
		BulkMemory     *bool `yaml:"bulk_memory"`
		MultiValue     *bool `yaml:"multi_value"`
	} `yaml:"features"`
}

func readConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*fileConfig, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &fc, nil
}

// apply copies the settings present in fc onto cfg.
func (fc *fileConfig) apply(cfg *engine.Config) error {
	if fc.Strategy != "" {
		s, ok := engine.ParseStrategy(fc.Strategy)
		if !ok {
			return fmt.Errorf("unknown strategy %q", fc.Strategy)
		}
		cfg.SetStrategy(s)
	}
	if fc.OptLevel != "" {
		o, ok := engine.ParseOptLevel(fc.OptLevel)
		if !ok {
			return fmt.Errorf("unknown opt_level %q", fc.OptLevel)
		}
		cfg.SetOptLevel(o)
	}
	if fc.CacheDir != "" {
		cfg.SetCacheDir(fc.CacheDir)
	}
	if fc.MemoryPages > 0 {
		cfg.SetMemoryLimitPages(fc.MemoryPages)
	}
	if fc.CallTimeout > 0 {
		cfg.SetCallTimeout(fc.CallTimeout)
	}

	flags := []struct {
		v   *bool
		set func(bool)
	}{
		{fc.DebugInfo, cfg.SetDebugInfo},
		{fc.DebugVerifier, cfg.SetDebugVerifier},
		{fc.Interruptible, cfg.SetInterruptible},
		{fc.HostAllocator, cfg.SetHostAllocator},
		{fc.InterfaceTypes, cfg.SetInterfaceTypes},
		{fc.Features.Threads, cfg.SetThreads},
		{fc.Features.ReferenceTypes, cfg.SetReferenceTypes},
		{fc.Features.SIMD, cfg.SetSIMD},
		{fc.Features.BulkMemory, cfg.SetBulkMemory},
		{fc.Features.MultiValue, cfg.SetMultiValue},
	}
	for _, f := range flags {
		if f.v != nil {
			f.set(*f.v)
		}
	}
	return nil
}
