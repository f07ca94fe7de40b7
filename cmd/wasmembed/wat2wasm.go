package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-embed/engine"
)

var wat2wasmCmd = &cobra.Command{
	Use:   "wat2wasm <file.wat>",
	Short: "Convert the text format to a binary module",
	Long: `Convert a module in the WebAssembly text format to its binary encoding.

The binary is written to --output, or next to the input with a .wasm
extension. Diagnostics are reported as line:col: message.`,
	Args: cobra.ExactArgs(1),
	RunE: runWat2Wasm,
}

func init() {
	wat2wasmCmd.Flags().StringP("output", "o", "", "Output file (default: input with .wasm extension)")
	rootCmd.AddCommand(wat2wasmCmd)
}

func runWat2Wasm(cmd *cobra.Command, args []string) error {
	in := args[0]
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = strings.TrimSuffix(in, ".wat") + ".wasm"
	}

	src, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	e, err := engine.NewEngine()
	if err != nil {
		return err
	}
	defer e.Close(cmd.Context())

	bin, err := engine.Wat2Wasm(e, string(src))
	if err != nil {
		return fmt.Errorf("%s:%w", in, err)
	}
	if err := os.WriteFile(out, bin, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(bin))
	return nil
}
