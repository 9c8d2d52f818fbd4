package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waystation/wayside/internal/way"
)

// State is the lifecycle phase of a panel.
type State int

const (
	StateAbsent State = iota
	StateCreating
	StateVisible
	StateHidden
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreating:
		return "creating"
	case StateVisible:
		return "visible"
	case StateHidden:
		return "hidden"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Surface is the host-side handle of a rendered panel.
type Surface interface {
	SetHTML(html string)
	AssetURI(name string) string
	PostMessage(ctx context.Context, msg Message) error
	Reveal(ctx context.Context) error
	OnMessage(fn func(data []byte)) (release func())
	OnVisibilityChange(fn func(visible bool)) (release func())
	OnDispose(fn func()) (release func())
	Dispose()
}

// Factory creates surfaces.
type Factory interface {
	Create(ctx context.Context) (Surface, error)
}

// Handler services messages coming from the panel.
type Handler interface {
	Update(ctx context.Context, ws way.Waystation) (way.ValidationResult, error)
	OpenDocument(ctx context.Context, mark way.Mark) error
}

// ErrNoHandler is returned when a panel is created before a Handler is set.
var ErrNoHandler = errors.New("panel: handler not set")

// ErrBusy is returned by a Handler when an update is already being applied.
// The panel is told so instead of waiting for a reply.
var ErrBusy = errors.New("operation already in progress")

// busyReply is the error payload posted for an update rejected with ErrBusy.
var busyReply = json.RawMessage(`"update already in progress"`)

// Manager owns the single panel instance.
type Manager struct {
	ctx     context.Context
	factory Factory
	logger  *slog.Logger

	createMu sync.Mutex

	mu       sync.Mutex
	handler  Handler
	current  *Panel
	creating bool
}

// NewManager constructs a Manager. ctx scopes the handling of inbound panel
// messages and is usually the application's lifetime context.
func NewManager(ctx context.Context, factory Factory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{ctx: ctx, factory: factory, logger: logger}
}

// SetHandler installs the inbound message handler.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// State reports the lifecycle phase of the managed panel.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creating {
		return StateCreating
	}
	if m.current == nil {
		return StateAbsent
	}
	return m.current.State()
}

// Current returns the live panel or nil.
func (m *Manager) Current() *Panel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CreateOrShow reveals the existing panel or creates one. created reports
// whether a new panel was made.
func (m *Manager) CreateOrShow(ctx context.Context) (p *Panel, created bool, err error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if existing := m.Current(); existing != nil {
		if err := existing.Reveal(ctx); err != nil {
			return existing, false, err
		}
		return existing, false, nil
	}

	m.mu.Lock()
	handler := m.handler
	if handler == nil {
		m.mu.Unlock()
		return nil, false, ErrNoHandler
	}
	m.creating = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.creating = false
		m.mu.Unlock()
	}()

	surface, err := m.factory.Create(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("panel: create surface: %w", err)
	}
	p = &Panel{
		ctx:     m.ctx,
		surface: surface,
		handler: handler,
		logger:  m.logger,
		state:   StateCreating,
	}
	p.released = func() { m.release(p) }
	if err := p.render(); err != nil {
		surface.Dispose()
		return nil, false, err
	}
	p.listen()

	m.mu.Lock()
	m.current = p
	m.mu.Unlock()

	if err := surface.Reveal(ctx); err != nil {
		m.logger.Warn("reveal panel", "error", err)
	}
	p.setState(StateVisible)
	m.logger.Info("panel created")
	return p, true, nil
}

// Post sends msg to the panel if one is open. It reports whether a panel
// received the message.
func (m *Manager) Post(ctx context.Context, msg Message) (bool, error) {
	p := m.Current()
	if p == nil {
		return false, nil
	}
	if err := p.Post(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// Dispose closes the panel if one is open.
func (m *Manager) Dispose() {
	if p := m.Current(); p != nil {
		p.Dispose()
	}
}

func (m *Manager) release(p *Panel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == p {
		m.current = nil
	}
}

// Panel is one rendered panel and the listeners it has registered.
type Panel struct {
	ctx      context.Context
	surface  Surface
	handler  Handler
	logger   *slog.Logger
	released func()

	mu          sync.Mutex
	state       State
	nonce       string
	disposables []func()
}

// State returns the panel's lifecycle phase.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Nonce returns the nonce of the currently rendered shell.
func (p *Panel) Nonce() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonce
}

// Post sends msg to the panel.
func (p *Panel) Post(ctx context.Context, msg Message) error {
	if p.State() == StateDisposed {
		return fmt.Errorf("panel: post %s: panel disposed", msg.Type)
	}
	return p.surface.PostMessage(ctx, msg)
}

// Reveal brings the panel to the front.
func (p *Panel) Reveal(ctx context.Context) error {
	if p.State() == StateDisposed {
		return fmt.Errorf("panel: reveal: panel disposed")
	}
	return p.surface.Reveal(ctx)
}

// Dispose releases every listener and the surface. It is idempotent.
func (p *Panel) Dispose() {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return
	}
	p.state = StateDisposed
	disposables := p.disposables
	p.disposables = nil
	p.mu.Unlock()

	for i := len(disposables) - 1; i >= 0; i-- {
		disposables[i]()
	}
	p.surface.Dispose()
	if p.released != nil {
		p.released()
	}
	p.logger.Info("panel disposed")
}

func (p *Panel) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateCreating && s == StateHidden {
		return
	}
	if p.state != StateDisposed {
		p.state = s
	}
}

func (p *Panel) render() error {
	nonce, err := NewNonce()
	if err != nil {
		return err
	}
	html, err := RenderShell(nonce, p.surface.AssetURI(ScriptAsset), p.surface.AssetURI(StyleAsset))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.nonce = nonce
	p.mu.Unlock()
	p.surface.SetHTML(html)
	return nil
}

func (p *Panel) listen() {
	releases := []func(){
		p.surface.OnMessage(p.handleMessage),
		p.surface.OnVisibilityChange(p.handleVisibility),
		p.surface.OnDispose(p.Dispose),
	}
	p.mu.Lock()
	p.disposables = append(p.disposables, releases...)
	p.mu.Unlock()
}

// handleVisibility renders a new shell on both transitions. The one made on
// hiding is what a page loaded before the next client connects is served.
func (p *Panel) handleVisibility(visible bool) {
	switch state := p.State(); {
	case visible && state == StateHidden:
		p.rerender()
		p.setState(StateVisible)
	case !visible && state == StateVisible:
		p.rerender()
		p.setState(StateHidden)
	}
}

func (p *Panel) rerender() {
	if err := p.render(); err != nil {
		p.logger.Error("rerender panel", "error", err)
	}
}

func (p *Panel) handleMessage(data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		p.logger.Warn("ignore panel message", "error", err)
		return
	}
	switch req := msg.(type) {
	case UpdateRequest:
		result, err := p.handler.Update(p.ctx, req.Waystation)
		if errors.Is(err, ErrBusy) {
			p.logger.Warn("update waystation", "id", req.Waystation.ID, "error", err)
			if err := p.Post(p.ctx, Failure(busyReply)); err != nil {
				p.logger.Warn("post busy reply", "error", err)
			}
			return
		}
		if err != nil {
			p.logger.Error("update waystation", "id", req.Waystation.ID, "error", err)
			return
		}
		var reply Message
		if result.Success && result.Waystation != nil {
			reply = Refresh(*result.Waystation)
		} else if result.Success {
			reply = Refresh(req.Waystation)
		} else {
			reply = Failure(result.Error)
		}
		if err := p.Post(p.ctx, reply); err != nil {
			p.logger.Warn("post update reply", "type", reply.Type, "error", err)
		}
	case OpenDocumentRequest:
		if err := p.handler.OpenDocument(p.ctx, req.Mark); err != nil {
			p.logger.Error("open document", "mark", req.Mark.Location(), "error", err)
		}
	}
}
