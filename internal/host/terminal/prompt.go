package terminal

import (
	"context"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

func (e *Editor) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(e.opts.In),
		tea.WithOutput(e.opts.Out),
	)
	return p.Run()
}

type pickItem string

func (i pickItem) FilterValue() string { return string(i) }
func (i pickItem) Title() string       { return string(i) }
func (i pickItem) Description() string { return "" }

type pickModel struct {
	list   list.Model
	choice string
}

func newPickModel(placeholder string, items []string) pickModel {
	entries := make([]list.Item, len(items))
	for i, item := range items {
		entries[i] = pickItem(item)
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)
	l := list.New(entries, delegate, 60, 14)
	l.Title = placeholder
	l.SetShowStatusBar(false)
	return pickModel{list: l}
}

func (m pickModel) Init() tea.Cmd { return nil }

func (m pickModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(pickItem); ok {
				m.choice = string(item)
			}
			return m, tea.Quit
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickModel) View() string { return m.list.View() }

type inputModel struct {
	input     textinput.Model
	value     string
	submitted bool
}

func newInputModel(prompt string) inputModel {
	ti := textinput.New()
	ti.Placeholder = prompt
	ti.Prompt = prompt + ": "
	ti.CharLimit = 256
	ti.Focus()
	return inputModel{input: ti}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.value = m.input.Value()
			m.submitted = true
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string { return m.input.View() + "\n" }
