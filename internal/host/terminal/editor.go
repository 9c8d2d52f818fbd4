// Package terminal implements host.Editor for direct command-line use.
// The cursor comes from flags, prompts run as small Bubble Tea programs and
// documents open in $EDITOR.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"golang.org/x/term"

	"github.com/waystation/wayside/internal/host"
)

// Position is a one-based location as a user types it.
type Position struct {
	Path    string
	Line    int
	Column  int
	Context string
}

// Options configures an Editor.
type Options struct {
	// Position is reported as the active cursor. Nil means no active editor.
	Position *Position
	In       io.Reader
	Out      io.Writer
	// Interactive enables prompts. Without it QuickPick and InputBox
	// return host.ErrUnsupported.
	Interactive bool
	// EditorCommand opens documents, for example "vi". Empty prints the
	// location instead.
	EditorCommand string
}

// Editor is a host.Editor bound to the current terminal.
type Editor struct {
	opts Options
	exec func(ctx context.Context, name string, args ...string) error
}

var _ host.Editor = (*Editor)(nil)

// New returns an Editor. Nil streams default to the process's stdin and
// stderr; stdout is left to command output.
func New(opts Options) *Editor {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	return &Editor{opts: opts, exec: runAttached}
}

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ActiveCursor converts the configured one-based position to the editor's
// zero-based cursor. Without explicit context the line is read from disk.
func (e *Editor) ActiveCursor(ctx context.Context) (host.Cursor, bool, error) {
	pos := e.opts.Position
	if pos == nil || pos.Path == "" {
		return host.Cursor{}, false, nil
	}
	if pos.Line < 1 || pos.Column < 1 {
		return host.Cursor{}, false, fmt.Errorf("terminal: line and column are one-based, got %d:%d", pos.Line, pos.Column)
	}
	path, err := filepath.Abs(pos.Path)
	if err != nil {
		return host.Cursor{}, false, fmt.Errorf("terminal: resolve %s: %w", pos.Path, err)
	}
	text := pos.Context
	if text == "" {
		text, err = readLine(path, pos.Line)
		if err != nil {
			return host.Cursor{}, false, err
		}
	}
	return host.Cursor{Path: path, Line: pos.Line - 1, Character: pos.Column - 1, Text: text}, true, nil
}

// QuickPick shows items in a filterable list.
func (e *Editor) QuickPick(ctx context.Context, placeholder string, items []string) (string, bool, error) {
	if !e.opts.Interactive {
		return "", false, host.ErrUnsupported
	}
	final, err := e.run(ctx, newPickModel(placeholder, items))
	if err != nil {
		return "", false, err
	}
	m := final.(pickModel)
	return m.choice, m.choice != "", nil
}

// InputBox reads one line of text.
func (e *Editor) InputBox(ctx context.Context, prompt string) (string, bool, error) {
	if !e.opts.Interactive {
		return "", false, host.ErrUnsupported
	}
	final, err := e.run(ctx, newInputModel(prompt))
	if err != nil {
		return "", false, err
	}
	m := final.(inputModel)
	if !m.submitted {
		return "", false, nil
	}
	return m.value, m.value != "", nil
}

// OpenDocument runs the configured editor with a +line argument, which vi,
// emacs, nano and most of their relatives accept.
func (e *Editor) OpenDocument(ctx context.Context, loc host.Location) error {
	if e.opts.EditorCommand == "" {
		_, err := fmt.Fprintf(e.opts.Out, "%s:%d:%d\n", loc.Path, loc.Line, loc.Column)
		return err
	}
	return e.exec(ctx, e.opts.EditorCommand, "+"+strconv.Itoa(loc.Line), loc.Path)
}

// RevealPanel prints the panel URL.
func (e *Editor) RevealPanel(ctx context.Context, url string) error {
	_, err := fmt.Fprintf(e.opts.Out, "panel: %s\n", url)
	return err
}

func readLine(path string, line int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("terminal: read context: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		if n == line {
			return scanner.Text(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("terminal: read context: %w", err)
	}
	return "", fmt.Errorf("terminal: %s has no line %d", path, line)
}

func runAttached(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("terminal: run %s: %w", name, err)
	}
	return nil
}
