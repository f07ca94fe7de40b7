package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/transcoder"
)

var replCmd = &cobra.Command{
	Use:   "repl <module>",
	Short: "Pick exports and call them interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dummy, _ := cmd.Flags().GetBool("dummy-imports")
		m := newReplModel(cmd, args[0], dummy)
		_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		m.close()
		return err
	},
}

func init() {
	replCmd.Flags().Bool("dummy-imports", false, "Satisfy imports with placeholder values")
	rootCmd.AddCommand(replCmd)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type replState int

const (
	stateSelectFunc replState = iota
	stateInputArgs
	stateShowResult
)

type funcInfo struct {
	name   string
	sig    string
	params []paramInfo
}

type paramInfo struct {
	name    string
	typeStr string
}

type replModel struct {
	err      error
	cmd      *cobra.Command
	session  *session
	instance *engine.Instance
	filename string
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    replState
	dummy    bool
}

type loadedMsg struct {
	err      error
	session  *session
	instance *engine.Instance
	funcs    []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func newReplModel(cmd *cobra.Command, filename string, dummy bool) *replModel {
	return &replModel{cmd: cmd, filename: filename, dummy: dummy}
}

func (m *replModel) Init() tea.Cmd {
	return m.load
}

func (m *replModel) load() tea.Msg {
	ctx := context.Background()
	s, err := openSession(ctx, m.cmd, m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	inst, err := s.instantiate(ctx, m.dummy)
	if err != nil {
		s.close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{session: s, instance: inst, funcs: describeFuncs(inst)}
}

// describeFuncs lists the callable exports of inst sorted by name.
func describeFuncs(inst *engine.Instance) []funcInfo {
	var funcs []funcInfo
	for _, ext := range inst.Exports() {
		if ext.Func() == nil {
			continue
		}
		fi := funcInfo{name: ext.Name()}
		if a := ext.Adapter(); a != nil {
			sig := a.Signature()
			fi.sig = sig.String()
			for _, p := range sig.Params {
				fi.params = append(fi.params, paramInfo{name: p.Name, typeStr: transcoder.TypeString(p.Type)})
			}
		} else {
			ft := ext.Func().Type()
			fi.sig = ext.Name() + ft.String()
			for i, p := range ft.Params {
				fi.params = append(fi.params, paramInfo{name: fmt.Sprintf("arg%d", i), typeStr: p.String()})
			}
		}
		funcs = append(funcs, fi)
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })
	return funcs
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.reset()
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			if m.state != stateSelectFunc {
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.instance = msg.instance
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *replModel) reset() {
	m.state = stateSelectFunc
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *replModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *replModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}
	results, err := callExport(m.cmd, m.instance, f.name, args, false)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResults(results)}
}

// close releases the instance and session once the program exits.
func (m *replModel) close() {
	ctx := context.Background()
	if m.instance != nil {
		if err := m.instance.Close(ctx); err != nil {
			engine.Logger().Warn("close instance", zap.Error(err))
		}
	}
	if m.session != nil {
		m.session.close(ctx)
	}
}

func (m *replModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.instance == nil {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wasmembed"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The module exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.sig))
			} else {
				b.WriteString("  " + nameStyle.Render(f.sig))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Calling %s\n\n", nameStyle.Render(f.name))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", nameStyle.Render(f.name))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}
	return b.String()
}
