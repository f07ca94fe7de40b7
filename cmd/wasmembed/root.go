package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/engine"
)

var rootCmd = &cobra.Command{
	Use:   "wasmembed",
	Short: "Embed and drive WebAssembly modules from the command line",
	Long: `wasmembed - compile, inspect and call WebAssembly modules.

Modules may be given as binary .wasm files or in the text format (.wat).
Exports described by an "interface-types" custom section can be called
with strings and other interface values when interface types are enabled.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if !verbose {
			return nil
		}
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		engine.SetLogger(logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = engine.Logger().Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log engine activity to stderr")
	rootCmd.PersistentFlags().String("config", "", "YAML engine configuration file")
	rootCmd.PersistentFlags().String("strategy", "", "Compilation strategy: auto, optimizing, baseline")
	rootCmd.PersistentFlags().Bool("interface-types", true, "Enable interface-typed adapters")
	rootCmd.PersistentFlags().Bool("host-allocator", false, "Fall back to a host allocator for modules without one")
}

// engineConfig builds the engine configuration from --config and the
// persistent flags. Flags given explicitly override the file.
func engineConfig(cmd *cobra.Command) (*engine.Config, error) {
	cfg := engine.NewConfig()
	cfg.SetInterfaceTypes(true)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		fc, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("strategy") {
		name, _ := flags.GetString("strategy")
		s, ok := engine.ParseStrategy(name)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		cfg.SetStrategy(s)
	}
	if flags.Changed("interface-types") {
		v, _ := flags.GetBool("interface-types")
		cfg.SetInterfaceTypes(v)
	}
	if flags.Changed("host-allocator") {
		v, _ := flags.GetBool("host-allocator")
		cfg.SetHostAllocator(v)
	}
	return cfg, nil
}

// session is an engine and store with one module loaded from a file.
type session struct {
	engine *engine.Engine
	store  *engine.Store
	module *engine.Module
	path   string
}

func openSession(ctx context.Context, cmd *cobra.Command, path string) (*session, error) {
	cfg, err := engineConfig(cmd)
	if err != nil {
		return nil, err
	}
	e, err := engine.NewEngineWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	s := &session{engine: e, path: path}
	if s.store, err = engine.NewStore(ctx, e); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("create store: %w", err)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("read module: %w", err)
	}
	if isText(path, src) {
		s.module, err = engine.NewModuleFromText(ctx, s.store, string(src))
	} else {
		s.module, err = engine.NewModule(ctx, s.store, src)
	}
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// instantiate creates an instance of the loaded module. Imports are
// satisfied with dummies when dummy is set.
func (s *session) instantiate(ctx context.Context, dummy bool) (*engine.Instance, error) {
	var imports []*engine.Extern
	if dummy {
		var err error
		if imports, err = engine.DummyImports(ctx, s.store, s.module); err != nil {
			return nil, err
		}
	}
	return engine.NewInstance(ctx, s.store, s.module, imports)
}

// close releases the session in reverse creation order. Errors are logged
// since there is nothing left to do with them.
func (s *session) close(ctx context.Context) {
	if s.module != nil {
		if err := s.module.Close(ctx); err != nil {
			engine.Logger().Warn("close module", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			engine.Logger().Warn("close store", zap.Error(err))
		}
	}
	if err := s.engine.Close(ctx); err != nil {
		engine.Logger().Warn("close engine", zap.Error(err))
	}
}

func isText(path string, src []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wat", ".wast":
		return true
	case ".wasm":
		return false
	}
	return !strings.HasPrefix(string(src), "\x00asm")
}
