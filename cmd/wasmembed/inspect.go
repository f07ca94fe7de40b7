package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <module>",
	Short: "List the imports and exports of a module",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().Bool("plain", false, "Disable styled output")
	rootCmd.AddCommand(inspectCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	typeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
)

// styler renders with lipgloss only when writing to a terminal.
type styler struct {
	enabled bool
}

func newStyler(w io.Writer, plain bool) styler {
	f, ok := w.(*os.File)
	return styler{enabled: !plain && ok && term.IsTerminal(int(f.Fd()))}
}

func (s styler) render(st lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return st.Render(text)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	plain, _ := cmd.Flags().GetBool("plain")

	s, err := openSession(ctx, cmd, args[0])
	if err != nil {
		return err
	}
	defer s.close(ctx)

	out := cmd.OutOrStdout()
	st := newStyler(out, plain)

	imports := s.module.Imports()
	fmt.Fprintln(out, st.render(headerStyle, fmt.Sprintf("Imports (%d)", len(imports))))
	for _, imp := range imports {
		fmt.Fprintf(out, "  %s %s\n",
			st.render(nameStyle, imp.Module+"."+imp.Name),
			st.render(typeStyle, imp.Type.String()))
	}

	exports := s.module.Exports()
	fmt.Fprintln(out, st.render(headerStyle, fmt.Sprintf("Exports (%d)", len(exports))))
	for _, exp := range exports {
		fmt.Fprintf(out, "  %s %s\n",
			st.render(nameStyle, exp.Name),
			st.render(typeStyle, exp.Type.String()))
	}
	return nil
}
