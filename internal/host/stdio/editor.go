package stdio

import (
	"context"

	"github.com/waystation/wayside/internal/host"
)

type quickPickParams struct {
	Placeholder string   `json:"placeholder,omitempty"`
	Items       []string `json:"items"`
}

type inputBoxParams struct {
	Prompt string `json:"prompt"`
}

type revealParams struct {
	URL string `json:"url"`
}

// ActiveCursor asks the editor for its active caret. A null result means no
// editor is active.
func (c *Conn) ActiveCursor(ctx context.Context) (host.Cursor, bool, error) {
	var cur host.Cursor
	ok, err := c.call(ctx, MethodActiveEditor, nil, &cur)
	if err != nil || !ok {
		return host.Cursor{}, false, err
	}
	return cur, cur.Path != "", nil
}

// QuickPick asks the editor to present items for selection.
func (c *Conn) QuickPick(ctx context.Context, placeholder string, items []string) (string, bool, error) {
	var choice string
	ok, err := c.call(ctx, MethodQuickPick, quickPickParams{Placeholder: placeholder, Items: items}, &choice)
	if err != nil || !ok {
		return "", false, err
	}
	return choice, choice != "", nil
}

// InputBox asks the editor for free text.
func (c *Conn) InputBox(ctx context.Context, prompt string) (string, bool, error) {
	var value string
	ok, err := c.call(ctx, MethodInputBox, inputBoxParams{Prompt: prompt}, &value)
	if err != nil || !ok {
		return "", false, err
	}
	return value, value != "", nil
}

// OpenDocument asks the editor to open loc.
func (c *Conn) OpenDocument(ctx context.Context, loc host.Location) error {
	_, err := c.call(ctx, MethodOpenDocument, loc, nil)
	return err
}

// RevealPanel asks the editor to show the panel page.
func (c *Conn) RevealPanel(ctx context.Context, url string) error {
	_, err := c.call(ctx, MethodRevealPanel, revealParams{URL: url}, nil)
	return err
}
