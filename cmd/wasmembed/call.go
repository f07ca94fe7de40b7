package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wasmembed "github.com/wippyai/wasm-embed"
	"github.com/wippyai/wasm-embed/engine"
)

var callCmd = &cobra.Command{
	Use:   "call <module> <export> [args...]",
	Short: "Instantiate a module and call one of its exports",
	Long: `Instantiate a module and call one exported function.

Exports with an interface signature are called through their adapter, so
string arguments are passed as text:

  wasmembed call greeter.wat greet "Hello World"

Other exports take core values (i32, i64, f32, f64). Imports can be
satisfied with placeholder values using --dummy-imports.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().Bool("dummy-imports", false, "Satisfy imports with placeholder values")
	callCmd.Flags().Bool("raw", false, "Call the core function even when an adapter exists")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dummy, _ := cmd.Flags().GetBool("dummy-imports")
	raw, _ := cmd.Flags().GetBool("raw")

	s, err := openSession(ctx, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.close(ctx)

	inst, err := s.instantiate(ctx, dummy)
	if err != nil {
		return err
	}
	defer func() {
		if err := inst.Close(ctx); err != nil {
			engine.Logger().Warn("close instance", zap.Error(err))
		}
	}()

	results, err := callExport(cmd, inst, args[1], args[2:], raw)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatResults(results))
	return nil
}

// callExport parses args against the export's type and calls it.
func callExport(cmd *cobra.Command, inst *engine.Instance, name string, args []string, raw bool) ([]wasmembed.Val, error) {
	ext, ok := inst.Export(name)
	if !ok {
		return nil, fmt.Errorf("no export named %q", name)
	}

	if adapter := ext.Adapter(); adapter != nil && !raw {
		sig := adapter.Signature()
		if len(args) != len(sig.Params) {
			return nil, fmt.Errorf("%s: expected %d arguments, got %d", sig, len(sig.Params), len(args))
		}
		vals := make([]wasmembed.Val, len(args))
		for i, a := range args {
			v, err := parseInterfaceArg(a, sig.Params[i].Type)
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", sig.Params[i].Name, err)
			}
			vals[i] = v
		}
		return adapter.Call(cmd.Context(), vals...)
	}

	fn := ext.Func()
	if fn == nil {
		return nil, fmt.Errorf("export %q is a %s, not a function", name, ext.Kind())
	}
	ft := fn.Type()
	if len(args) != len(ft.Params) {
		return nil, fmt.Errorf("%s%s: expected %d arguments, got %d", name, ft, len(ft.Params), len(args))
	}
	vals := make([]wasmembed.Val, len(args))
	for i, a := range args {
		v, err := parseCoreArg(a, ft.Params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		vals[i] = v
	}
	return fn.Call(cmd.Context(), vals...)
}
