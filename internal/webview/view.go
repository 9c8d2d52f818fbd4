package webview

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/waystation/wayside/internal/eventbus"
	"github.com/waystation/wayside/internal/panel"
)

// ErrDisposed is returned when posting to a view that has been disposed.
var ErrDisposed = errors.New("webview: view disposed")

// View is one panel surface served over HTTP. Every connected websocket
// client is a window onto the same view.
type View struct {
	server *Server
	topic  string
	bus    eventbus.Bus

	mu        sync.Mutex
	html      string
	last      *panel.Message
	clients   map[*websocket.Conn]struct{}
	disposed  bool
	nextID    int
	onMessage map[int]func([]byte)
	onVisible map[int]func(bool)
	onDispose map[int]func()
}

var _ panel.Surface = (*View)(nil)

func newView(server *Server, topic string) *View {
	return &View{
		server:    server,
		topic:     topic,
		bus:       server.bus,
		clients:   make(map[*websocket.Conn]struct{}),
		onMessage: make(map[int]func([]byte)),
		onVisible: make(map[int]func(bool)),
		onDispose: make(map[int]func()),
	}
}

// SetHTML replaces the page served at the panel URL.
func (v *View) SetHTML(html string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.html = html
}

// HTML returns the page currently served.
func (v *View) HTML() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.html
}

// AssetURI maps a bundled asset name to its served path.
func (v *View) AssetURI(name string) string {
	return "/media/" + name
}

// PostMessage broadcasts msg to every connected client. State messages are
// remembered and replayed to clients that connect later.
func (v *View) PostMessage(ctx context.Context, msg panel.Message) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return ErrDisposed
	}
	if msg.Type == panel.TypeCurrent || msg.Type == panel.TypeRefresh {
		m := msg
		v.last = &m
	}
	delivered, err := v.bus.Publish(ctx, v.topic, msg)
	if err != nil {
		return err
	}
	if delivered < len(v.clients) {
		v.server.logger.Warn("panel client lagging, message dropped", "type", msg.Type, "clients", len(v.clients), "delivered", delivered)
	}
	return nil
}

// Reveal asks the editor to show the panel URL.
func (v *View) Reveal(ctx context.Context) error {
	if v.server.reveal == nil {
		return nil
	}
	return v.server.reveal(ctx, v.server.URL())
}

// OnMessage registers fn for messages sent by any client.
func (v *View) OnMessage(fn func([]byte)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.onMessage[id] = fn
	return func() { v.forget(func() { delete(v.onMessage, id) }) }
}

// OnVisibilityChange registers fn for transitions between no clients and
// at least one client.
func (v *View) OnVisibilityChange(fn func(bool)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.onVisible[id] = fn
	return func() { v.forget(func() { delete(v.onVisible, id) }) }
}

// OnDispose registers fn for disposal initiated by the server.
func (v *View) OnDispose(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.onDispose[id] = fn
	return func() { v.forget(func() { delete(v.onDispose, id) }) }
}

// Dispose disconnects every client. Listeners are not notified.
func (v *View) Dispose() {
	v.dispose(false)
}

// Clients returns the number of connected clients.
func (v *View) Clients() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clients)
}

func (v *View) forget(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn()
}

func (v *View) dispose(notify bool) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	v.disposed = true
	conns := make([]*websocket.Conn, 0, len(v.clients))
	for c := range v.clients {
		conns = append(conns, c)
	}
	var listeners []func()
	if notify {
		for _, fn := range v.onDispose {
			listeners = append(listeners, fn)
		}
	}
	v.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "panel disposed"), deadline())
		_ = c.Close()
	}
	for _, fn := range listeners {
		fn()
	}
	v.server.detachView(v)
}

// attach registers conn and subscribes ch, replaying the last state message.
// The returned func undoes both.
func (v *View) attach(conn *websocket.Conn, ch chan any) (func(), error) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return nil, ErrDisposed
	}
	unsubscribe, err := v.bus.Subscribe(v.topic, ch)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	if v.last != nil {
		ch <- *v.last
	}
	v.clients[conn] = struct{}{}
	first := len(v.clients) == 1
	listeners := v.visibilityListeners()
	v.mu.Unlock()

	if first {
		for _, fn := range listeners {
			fn(true)
		}
	}
	return func() {
		unsubscribe()
		v.mu.Lock()
		_, present := v.clients[conn]
		delete(v.clients, conn)
		last := present && len(v.clients) == 0 && !v.disposed
		listeners := v.visibilityListeners()
		v.mu.Unlock()
		if last {
			for _, fn := range listeners {
				fn(false)
			}
		}
	}, nil
}

func (v *View) visibilityListeners() []func(bool) {
	out := make([]func(bool), 0, len(v.onVisible))
	for _, fn := range v.onVisible {
		out = append(out, fn)
	}
	return out
}

func (v *View) dispatch(data []byte) {
	v.mu.Lock()
	listeners := make([]func([]byte), 0, len(v.onMessage))
	for _, fn := range v.onMessage {
		listeners = append(listeners, fn)
	}
	v.mu.Unlock()
	for _, fn := range listeners {
		fn(data)
	}
}
