package way

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

const defaultBinary = "way"

// Client invokes way subcommands and decodes their output.
type Client struct {
	runner Runner
	binary string
	logger *slog.Logger
}

// New constructs a Client. An empty binary defaults to "way".
func New(runner Runner, binary string, logger *slog.Logger) *Client {
	if binary == "" {
		binary = defaultBinary
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{runner: runner, binary: binary, logger: logger}
}

// AddMark records a mark in the current waystation. way's output is ignored.
func (c *Client) AddMark(ctx context.Context, path string, line, column int, snippet string) error {
	_, err := c.runner.Run(ctx, c.markCommand(path, line, column, snippet))
	return err
}

// Current returns the current waystation.
func (c *Client) Current(ctx context.Context) (Waystation, error) {
	var ws Waystation
	if err := c.runJSON(ctx, c.binary+" -j", &ws); err != nil {
		return Waystation{}, err
	}
	return ws, nil
}

// List returns every known waystation.
func (c *Client) List(ctx context.Context) ([]Summary, error) {
	var items []Summary
	if err := c.runJSON(ctx, c.binary+" open -j", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// New creates a waystation and returns way's raw output.
func (c *Client) New(ctx context.Context, name string) (string, error) {
	out, err := c.runner.Run(ctx, c.binary+" new "+singleQuote(name))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Open makes the waystation with the given id current and returns way's raw output.
func (c *Client) Open(ctx context.Context, id ID) (string, error) {
	out, err := c.runner.Run(ctx, c.binary+" open "+singleQuote(string(id)))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Update replaces the waystation record and returns the stored result.
func (c *Client) Update(ctx context.Context, ws Waystation) (Waystation, error) {
	payload, err := json.Marshal(ws)
	if err != nil {
		return Waystation{}, fmt.Errorf("way: encode waystation: %w", err)
	}
	var updated Waystation
	if err := c.runJSON(ctx, c.binary+" update "+singleQuote(string(payload)), &updated); err != nil {
		return Waystation{}, err
	}
	return updated, nil
}

// Validate asks way whether ws would be accepted by Update.
func (c *Client) Validate(ctx context.Context, ws Waystation) (ValidationResult, error) {
	payload, err := json.Marshal(ws)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("way: encode waystation: %w", err)
	}
	var result ValidationResult
	if err := c.runJSON(ctx, c.binary+" validate "+singleQuote(string(payload)), &result); err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

// ValidateAndUpdate validates ws and updates it only when validation
// succeeds. A failed verdict is returned unchanged; a successful one carries
// the updated waystation.
func (c *Client) ValidateAndUpdate(ctx context.Context, ws Waystation) (ValidationResult, error) {
	result, err := c.Validate(ctx, ws)
	if err != nil {
		return ValidationResult{}, err
	}
	if !result.Success {
		c.logger.Debug("validation rejected waystation", "id", ws.ID, "error", string(result.Error))
		return result, nil
	}
	updated, err := c.Update(ctx, ws)
	if err != nil {
		return ValidationResult{}, err
	}
	result.Waystation = &updated
	return result, nil
}

func (c *Client) runJSON(ctx context.Context, commandLine string, dst any) error {
	out, err := c.runner.Run(ctx, commandLine)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, dst); err != nil {
		return &ParseError{Command: commandLine, Output: string(out), Err: err}
	}
	return nil
}

func (c *Client) markCommand(path string, line, column int, snippet string) string {
	arg := path + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(column) + ":" + EscapeContext(snippet)
	return c.binary + ` mark "` + arg + `"`
}

// EscapeContext prefixes every double quote with a backslash and leaves
// everything else untouched.
func EscapeContext(snippet string) string {
	return strings.ReplaceAll(snippet, `"`, `\"`)
}

func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
