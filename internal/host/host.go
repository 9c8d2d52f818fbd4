// Package host describes what wayside needs from the editor it serves.
package host

import (
	"context"
	"errors"
)

// Cursor is the caret of the active editor. Line and Character are
// zero-based, as editors report them.
type Cursor struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	// Text is the full text of the cursor's line.
	Text string `json:"text"`
}

// Location is a one-based position to navigate to.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	// Beside asks the editor to open the document in a column other than
	// the panel's.
	Beside bool `json:"beside"`
}

// Editor is the editor host surface used by command handlers.
//
// Prompt methods report ok=false when the user cancelled.
type Editor interface {
	ActiveCursor(ctx context.Context) (cursor Cursor, ok bool, err error)
	QuickPick(ctx context.Context, placeholder string, items []string) (choice string, ok bool, err error)
	InputBox(ctx context.Context, prompt string) (value string, ok bool, err error)
	OpenDocument(ctx context.Context, loc Location) error
	RevealPanel(ctx context.Context, url string) error
}

// ErrUnsupported is returned by editors that cannot perform an operation.
var ErrUnsupported = errors.New("host: operation not supported by this editor")
