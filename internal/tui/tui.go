// Package tui is a terminal front-end for the panel protocol. It connects
// to a running wayside host and shows the current waystation.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/waystation/wayside/internal/panel"
	"github.com/waystation/wayside/internal/way"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14"))
	contextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// Conn is the panel connection the model drives.
type Conn interface {
	Receive() (panel.Message, error)
	Send(msg panel.Message) error
}

type inboundMsg struct {
	msg panel.Message
}

type sentMsg struct {
	kind string
}

type errMsg struct {
	err error
}

type closedMsg struct {
	err error
}

// Run dials url and runs the panel until the user quits.
func Run(ctx context.Context, url string) error {
	client, err := Dial(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()

	p := tea.NewProgram(newModel(client), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

type model struct {
	conn   Conn
	ws     *way.Waystation
	cursor int
	dirty  bool
	status string
	err    string
	closed bool
	width  int
}

func newModel(conn Conn) model {
	return model{conn: conn, status: "waiting for waystation"}
}

func (m model) Init() tea.Cmd {
	return receiveCmd(m.conn)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case inboundMsg:
		return m.apply(msg.msg), receiveCmd(m.conn)
	case sentMsg:
		m.status = msg.kind + " sent"
		return m, nil
	case errMsg:
		m.err = msg.err.Error()
		return m, nil
	case closedMsg:
		m.closed = true
		if msg.err != nil {
			m.err = msg.err.Error()
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) apply(msg panel.Message) model {
	switch msg.Type {
	case panel.TypeCurrent, panel.TypeRefresh:
		if msg.Waystation == nil {
			return m
		}
		ws := *msg.Waystation
		m.ws = &ws
		m.dirty = false
		m.err = ""
		if m.cursor >= len(ws.Marks) {
			m.cursor = max(len(ws.Marks)-1, 0)
		}
		if msg.Type == panel.TypeRefresh {
			m.status = "updated"
		} else {
			m.status = ""
		}
	case panel.TypeError:
		m.err = describeError(msg.Error)
		m.status = "update rejected"
	}
	return m
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	marks := 0
	if m.ws != nil {
		marks = len(m.ws.Marks)
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.cursor < marks-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "J", "shift+down":
		if m.cursor < marks-1 {
			m.swap(m.cursor, m.cursor+1)
			m.cursor++
		}
	case "K", "shift+up":
		if m.cursor > 0 {
			m.swap(m.cursor, m.cursor-1)
			m.cursor--
		}
	case "d", "delete":
		if marks > 0 {
			m.remove(m.cursor)
			if m.cursor >= marks-1 && m.cursor > 0 {
				m.cursor--
			}
		}
	case "enter":
		if marks > 0 {
			return m, openCmd(m.conn, m.ws.Marks[m.cursor])
		}
	case "s":
		if m.ws != nil && m.dirty {
			m.status = "saving"
			return m, sendCmd(m.conn, panel.Update(*m.ws), "update")
		}
	}
	return m, nil
}

// swap and remove copy the mark slice so the waystation received from the
// host is never mutated in place.
func (m *model) swap(i, j int) {
	ws := *m.ws
	ws.Marks = append([]way.Mark(nil), ws.Marks...)
	ws.Marks[i], ws.Marks[j] = ws.Marks[j], ws.Marks[i]
	m.ws = &ws
	m.dirty = true
}

func (m *model) remove(i int) {
	ws := *m.ws
	marks := make([]way.Mark, 0, len(ws.Marks)-1)
	marks = append(marks, ws.Marks[:i]...)
	ws.Marks = append(marks, ws.Marks[i+1:]...)
	m.ws = &ws
	m.dirty = true
}

func (m model) View() string {
	var b strings.Builder
	name := "no waystation"
	if m.ws != nil {
		name = m.ws.Name
		if name == "" {
			name = string(m.ws.ID)
		}
	}
	title := "waystation: " + name
	if m.dirty {
		title += " *"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	if m.ws == nil || len(m.ws.Marks) == 0 {
		b.WriteString(contextStyle.Render("  (no marks)"))
		b.WriteString("\n")
	} else {
		for i, mark := range m.ws.Marks {
			line := fmt.Sprintf("%2d  %s", i+1, mark.Location())
			if i == m.cursor {
				line = selectedStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
			if ctx := strings.TrimSpace(mark.Context); ctx != "" {
				b.WriteString("    ")
				b.WriteString(contextStyle.Render(ctx))
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	if m.err != "" {
		b.WriteString(errorStyle.Render("error: " + m.err))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.closed {
		b.WriteString(errorStyle.Render("connection closed"))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("j/k move  J/K reorder  d delete  enter open  s save  q quit"))
	b.WriteString("\n")
	return b.String()
}

func describeError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "validation failed"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func receiveCmd(conn Conn) tea.Cmd {
	return func() tea.Msg {
		msg, err := conn.Receive()
		if err != nil {
			return closedMsg{err: err}
		}
		return inboundMsg{msg: msg}
	}
}

func sendCmd(conn Conn, msg panel.Message, kind string) tea.Cmd {
	return func() tea.Msg {
		if err := conn.Send(msg); err != nil {
			return errMsg{err: err}
		}
		return sentMsg{kind: kind}
	}
}

func openCmd(conn Conn, mark way.Mark) tea.Cmd {
	return func() tea.Msg {
		msg, err := panel.OpenDocument(mark)
		if err != nil {
			return errMsg{err: err}
		}
		if err := conn.Send(msg); err != nil {
			return errMsg{err: err}
		}
		return sentMsg{kind: "open " + mark.Location()}
	}
}
