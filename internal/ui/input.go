package ui

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// Ask prompts for a line of input (e.g. an approver name).
func Ask(prompt string, placeholder string) (string, error) {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	m := inputModel{
		textInput: ti,
		prompt:    prompt,
	}

	// Use Stderr to avoid polluting stdout
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	if fm, ok := finalModel.(inputModel); ok && fm.complete {
		return fm.textInput.Value(), nil
	}
	return "", fmt.Errorf("cancelled")
}

// Confirm reads a single y/N answer in raw mode.
func Confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)

	oldState, err := term.MakeRaw(int(syscall.Stdin))
	if err != nil {
		// No terminal; fall back to line input.
		var answer string
		fmt.Scanln(&answer)
		return strings.EqualFold(strings.TrimSpace(answer), "y")
	}
	defer term.Restore(int(syscall.Stdin), oldState)

	buf := make([]byte, 1)
	if _, err := syscall.Read(syscall.Stdin, buf); err != nil {
		return false
	}
	fmt.Fprintf(os.Stderr, "%c\r\n", buf[0])
	return buf[0] == 'y' || buf[0] == 'Y'
}

type inputModel struct {
	textInput textinput.Model
	prompt    string
	complete  bool
	quitting  bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.complete = true
			return m, tea.Quit
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.complete || m.quitting {
		return ""
	}
	return fmt.Sprintf(
		"\n%s\n\n%s\n\n",
		titleStyle.Render(m.prompt),
		m.textInput.View(),
	)
}
