// Package stdio speaks the editor protocol over a pair of byte streams,
// one JSON object per line. The editor sends commands and answers requests;
// wayside answers commands and sends requests.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/waystation/wayside/internal/host"
)

const maxLine = 1024 * 1024

// Envelope types.
const (
	TypeCommand  = "command"
	TypeResult   = "result"
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
)

// Request methods sent to the editor.
const (
	MethodActiveEditor = "activeEditor"
	MethodQuickPick    = "quickPick"
	MethodInputBox     = "inputBox"
	MethodOpenDocument = "openDocument"
	MethodRevealPanel  = "revealPanel"
)

// Envelope is one protocol line.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Dispatcher runs editor commands.
type Dispatcher interface {
	Execute(ctx context.Context, command string) error
}

// ErrClosed is returned by requests outstanding when the stream ends.
var ErrClosed = errors.New("stdio: editor connection closed")

// RemoteError is an error reported by the editor in a response.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("editor %s: %s", e.Method, e.Message)
}

// Conn is both the protocol server and the host.Editor backed by it.
type Conn struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	closed  bool

	inflight sync.WaitGroup
}

var _ host.Editor = (*Conn)(nil)

// New returns a Conn reading from in and writing to out.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{in: in, out: out, logger: logger, pending: make(map[string]chan Envelope)}
}

// Serve reads lines until the stream ends or ctx is cancelled. Each command
// runs on its own goroutine so it can wait on editor responses. Serve
// returns after every command has finished.
func (c *Conn) Serve(ctx context.Context, d Dispatcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case line, ok := <-lines:
			if !ok {
				select {
				case err = <-scanErr:
				default:
				}
				break loop
			}
			c.handleLine(ctx, d, line)
		}
	}

	if errors.Is(err, bufio.ErrTooLong) {
		c.send(Envelope{Type: TypeError, Message: "line too large (max 1MB)"})
	}
	c.closePending()
	cancel()
	c.inflight.Wait()
	return err
}

func (c *Conn) handleLine(ctx context.Context, d Dispatcher, line []byte) {
	if len(line) == 0 {
		return
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.logger.Warn("invalid editor message", "error", err)
		c.send(Envelope{Type: TypeError, Message: "invalid JSON"})
		return
	}
	switch env.Type {
	case TypeCommand:
		if env.Command == "" {
			c.send(Envelope{Type: TypeError, ID: env.ID, Message: "missing required field: command"})
			return
		}
		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.runCommand(ctx, d, env)
		}()
	case TypeResponse:
		c.deliver(env)
	default:
		c.send(Envelope{Type: TypeError, ID: env.ID, Message: fmt.Sprintf("unknown message type %q", env.Type)})
	}
}

func (c *Conn) runCommand(ctx context.Context, d Dispatcher, env Envelope) {
	c.logger.Debug("editor command", "id", env.ID, "command", env.Command)
	err := d.Execute(ctx, env.Command)
	ok := err == nil
	reply := Envelope{Type: TypeResult, ID: env.ID, OK: &ok}
	if err != nil {
		reply.Error = err.Error()
		c.logger.Error("command failed", "command", env.Command, "error", err)
	}
	c.send(reply)
}

func (c *Conn) deliver(env Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("response for unknown request", "id", env.ID)
		return
	}
	ch <- env
}

func (c *Conn) closePending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("encode editor message", "error", err)
		return
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.out.Write(data); err != nil {
		c.logger.Error("write editor message", "error", err)
	}
}

// call sends a request and decodes a non-null result into dst. It reports
// ok=false for a null result.
func (c *Conn) call(ctx context.Context, method string, params any, dst any) (bool, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return false, fmt.Errorf("stdio: encode %s params: %w", method, err)
		}
		raw = data
	}

	id := uuid.NewString()
	ch := make(chan Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.send(Envelope{Type: TypeRequest, ID: id, Method: method, Params: raw})

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return false, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return false, ErrClosed
		}
		if resp.Error != "" {
			return false, &RemoteError{Method: method, Message: resp.Error}
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			return false, nil
		}
		if dst == nil {
			return true, nil
		}
		if err := json.Unmarshal(resp.Result, dst); err != nil {
			return false, fmt.Errorf("stdio: decode %s result: %w", method, err)
		}
		return true, nil
	}
}
