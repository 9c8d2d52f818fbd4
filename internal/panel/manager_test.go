package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/waystation/wayside/internal/way"
)

type fakeSurface struct {
	mu         sync.Mutex
	html       []string
	posted     []Message
	reveals    int
	disposed   bool
	onMessage  map[int]func([]byte)
	onVisible  map[int]func(bool)
	onDispose  map[int]func()
	nextListen int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		onMessage: map[int]func([]byte){},
		onVisible: map[int]func(bool){},
		onDispose: map[int]func(){},
	}
}

func (s *fakeSurface) SetHTML(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html = append(s.html, html)
}

func (s *fakeSurface) AssetURI(name string) string { return "/media/" + name }

func (s *fakeSurface) PostMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, msg)
	return nil
}

func (s *fakeSurface) Reveal(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reveals++
	return nil
}

func (s *fakeSurface) OnMessage(fn func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.onMessage[id] = fn
	return func() { s.mu.Lock(); delete(s.onMessage, id); s.mu.Unlock() }
}

func (s *fakeSurface) OnVisibilityChange(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.onVisible[id] = fn
	return func() { s.mu.Lock(); delete(s.onVisible, id); s.mu.Unlock() }
}

func (s *fakeSurface) OnDispose(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.onDispose[id] = fn
	return func() { s.mu.Lock(); delete(s.onDispose, id); s.mu.Unlock() }
}

func (s *fakeSurface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

func (s *fakeSurface) listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.onMessage) + len(s.onVisible) + len(s.onDispose)
}

func (s *fakeSurface) send(t *testing.T, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	s.mu.Lock()
	fns := make([]func([]byte), 0, len(s.onMessage))
	for _, fn := range s.onMessage {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (s *fakeSurface) visible(v bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.onVisible))
	for _, fn := range s.onVisible {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (s *fakeSurface) closedByUser() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.onDispose))
	for _, fn := range s.onDispose {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *fakeSurface) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.posted...)
}

type fakeFactory struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
}

func (f *fakeFactory) Create(context.Context) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := newFakeSurface()
	f.surfaces = append(f.surfaces, s)
	return s, nil
}

type fakeHandler struct {
	result    way.ValidationResult
	err       error
	updates   []way.Waystation
	navigated []way.Mark
}

func (h *fakeHandler) Update(_ context.Context, ws way.Waystation) (way.ValidationResult, error) {
	h.updates = append(h.updates, ws)
	return h.result, h.err
}

func (h *fakeHandler) OpenDocument(_ context.Context, mark way.Mark) error {
	h.navigated = append(h.navigated, mark)
	return nil
}

func newTestManager(h Handler) (*Manager, *fakeFactory) {
	factory := &fakeFactory{}
	m := NewManager(context.Background(), factory, nil)
	m.SetHandler(h)
	return m, factory
}

func TestCreateOrShowReusesPanel(t *testing.T) {
	m, factory := newTestManager(&fakeHandler{})
	ctx := context.Background()

	first, created, err := m.CreateOrShow(ctx)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := m.CreateOrShow(ctx)
	if err != nil || created {
		t.Fatalf("second create: created=%v err=%v", created, err)
	}
	if first != second {
		t.Fatalf("expected the same panel instance")
	}
	if len(factory.surfaces) != 1 {
		t.Fatalf("factory called %d times, want 1", len(factory.surfaces))
	}
	if factory.surfaces[0].reveals != 2 {
		t.Fatalf("reveals = %d, want 2", factory.surfaces[0].reveals)
	}
	if m.State() != StateVisible {
		t.Fatalf("state = %s, want visible", m.State())
	}
}

func TestCreateRequiresHandler(t *testing.T) {
	m := NewManager(context.Background(), &fakeFactory{}, nil)
	if _, _, err := m.CreateOrShow(context.Background()); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestShellCarriesNonce(t *testing.T) {
	m, factory := newTestManager(&fakeHandler{})
	p, _, err := m.CreateOrShow(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	html := factory.surfaces[0].html[0]
	nonce := p.Nonce()
	if len(nonce) != 32 {
		t.Fatalf("unexpected nonce %q", nonce)
	}
	if !strings.Contains(html, `nonce="`+nonce+`"`) || !strings.Contains(html, "nonce-"+nonce) {
		t.Fatalf("shell does not carry nonce %s:\n%s", nonce, html)
	}
	if !strings.Contains(html, "/media/main.js") || !strings.Contains(html, "/media/main.css") {
		t.Fatalf("shell missing asset uris:\n%s", html)
	}
}

func TestVisibilityRerendersShell(t *testing.T) {
	m, factory := newTestManager(&fakeHandler{})
	p, _, _ := m.CreateOrShow(context.Background())
	surface := factory.surfaces[0]
	before := p.Nonce()

	surface.visible(false)
	if p.State() != StateHidden {
		t.Fatalf("state = %s, want hidden", p.State())
	}
	if len(surface.html) != 2 || p.Nonce() == before {
		t.Fatalf("expected a fresh shell once hidden, html set %d times", len(surface.html))
	}
	if !strings.Contains(surface.html[1], p.Nonce()) {
		t.Fatalf("new shell does not carry the new nonce")
	}
	hidden := p.Nonce()

	surface.visible(true)
	if p.State() != StateVisible {
		t.Fatalf("state = %s, want visible", p.State())
	}
	if len(surface.html) != 3 || p.Nonce() == hidden || p.Nonce() == before {
		t.Fatalf("expected a fresh shell once visible, html set %d times", len(surface.html))
	}
}

func TestDisposeReleasesListeners(t *testing.T) {
	m, factory := newTestManager(&fakeHandler{})
	p, _, _ := m.CreateOrShow(context.Background())
	surface := factory.surfaces[0]
	if surface.listeners() != 3 {
		t.Fatalf("listeners = %d, want 3", surface.listeners())
	}

	m.Dispose()
	m.Dispose()
	if surface.listeners() != 0 || !surface.disposed {
		t.Fatalf("dispose left listeners=%d disposed=%v", surface.listeners(), surface.disposed)
	}
	if m.Current() != nil || m.State() != StateAbsent {
		t.Fatalf("manager still holds a panel")
	}
	if p.State() != StateDisposed {
		t.Fatalf("panel state = %s", p.State())
	}
	if _, created, _ := m.CreateOrShow(context.Background()); !created {
		t.Fatalf("expected a new panel after dispose")
	}
}

func TestSurfaceCloseClearsManager(t *testing.T) {
	m, factory := newTestManager(&fakeHandler{})
	_, _, _ = m.CreateOrShow(context.Background())
	factory.surfaces[0].closedByUser()
	if m.Current() != nil {
		t.Fatalf("expected panel reference to be cleared")
	}
	if ok, err := m.Post(context.Background(), Current(way.Waystation{})); ok || err != nil {
		t.Fatalf("post without panel: ok=%v err=%v", ok, err)
	}
}

func TestUpdateSuccessPostsRefresh(t *testing.T) {
	stored := way.Waystation{ID: "1", Name: "stored"}
	h := &fakeHandler{result: way.ValidationResult{Success: true, Waystation: &stored}}
	m, factory := newTestManager(h)
	_, _, _ = m.CreateOrShow(context.Background())
	surface := factory.surfaces[0]

	surface.send(t, Update(way.Waystation{ID: "1", Name: "edited"}))
	if len(h.updates) != 1 || h.updates[0].Name != "edited" {
		t.Fatalf("handler updates: %+v", h.updates)
	}
	msgs := surface.messages()
	if len(msgs) != 1 || msgs[0].Type != TypeRefresh || msgs[0].Waystation.Name != "stored" {
		t.Fatalf("unexpected replies: %+v", msgs)
	}
}

func TestUpdateFailurePostsError(t *testing.T) {
	h := &fakeHandler{result: way.ValidationResult{Success: false, Error: json.RawMessage(`{"field":"marks"}`)}}
	m, factory := newTestManager(h)
	_, _, _ = m.CreateOrShow(context.Background())
	surface := factory.surfaces[0]

	surface.send(t, Update(way.Waystation{ID: "1"}))
	msgs := surface.messages()
	if len(msgs) != 1 || msgs[0].Type != TypeError || string(msgs[0].Error) != `{"field":"marks"}` {
		t.Fatalf("unexpected replies: %+v", msgs)
	}
}

func TestUpdateBusyPostsError(t *testing.T) {
	h := &fakeHandler{err: fmt.Errorf("waystation:update: %w", ErrBusy)}
	m, factory := newTestManager(h)
	_, _, _ = m.CreateOrShow(context.Background())
	surface := factory.surfaces[0]

	surface.send(t, Update(way.Waystation{ID: "1"}))
	msgs := surface.messages()
	if len(msgs) != 1 || msgs[0].Type != TypeError || string(msgs[0].Error) != `"update already in progress"` {
		t.Fatalf("unexpected replies: %+v", msgs)
	}
}

func TestUpdateBridgeErrorPostsNothing(t *testing.T) {
	h := &fakeHandler{err: errors.New("way exploded")}
	m, factory := newTestManager(h)
	_, _, _ = m.CreateOrShow(context.Background())
	surface := factory.surfaces[0]

	surface.send(t, Update(way.Waystation{ID: "1"}))
	if msgs := surface.messages(); len(msgs) != 0 {
		t.Fatalf("expected no reply, got %+v", msgs)
	}
}

func TestOpenDocumentDecodesMark(t *testing.T) {
	h := &fakeHandler{}
	m, factory := newTestManager(h)
	_, _, _ = m.CreateOrShow(context.Background())

	msg, err := OpenDocument(way.Mark{Path: "/a.go", Line: 4, Column: 2, Context: "x"})
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	factory.surfaces[0].send(t, msg)
	if len(h.navigated) != 1 || h.navigated[0].Location() != "/a.go:4:2" {
		t.Fatalf("unexpected navigation: %+v", h.navigated)
	}
}

func TestUnknownMessageIgnored(t *testing.T) {
	h := &fakeHandler{}
	m, factory := newTestManager(h)
	_, _, _ = m.CreateOrShow(context.Background())
	factory.surfaces[0].send(t, Message{Type: "waystation:bogus"})
	if len(h.updates)+len(h.navigated) != 0 {
		t.Fatalf("unknown message reached the handler")
	}
}
