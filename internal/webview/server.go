package webview

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/waystation/wayside/internal/eventbus"
	"github.com/waystation/wayside/internal/eventbus/memory"
	"github.com/waystation/wayside/internal/panel"
)

//go:embed media/*
var mediaFS embed.FS

const (
	writeWait   = 10 * time.Second
	clientQueue = 32
	maxMessage  = 1 << 20
)

// RevealFunc asks the editor to show the panel at url.
type RevealFunc func(ctx context.Context, url string) error

// Server serves the panel page, its assets and the message websocket. It is
// also the panel.Factory: each Create replaces the served view.
type Server struct {
	logger   *slog.Logger
	bus      eventbus.Bus
	reveal   RevealFunc
	upgrader websocket.Upgrader
	router   chi.Router

	mu      sync.Mutex
	baseURL string
	view    *View
	seq     int
}

var _ panel.Factory = (*Server)(nil)

// NewServer constructs a Server. reveal may be nil.
func NewServer(logger *slog.Logger, reveal RevealFunc) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		logger: logger,
		bus:    memory.New(),
		reveal: reveal,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: sameOrigin}

	media, err := fs.Sub(mediaFS, "media")
	if err != nil {
		panic(fmt.Sprintf("webview: embedded media: %v", err))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handlePage)
	r.Get("/ws", s.handleSocket)
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.FS(media))))
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetBaseURL records the address the listener ended up on.
func (s *Server) SetBaseURL(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimSuffix(base, "/")
}

// URL returns the panel page URL.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL + "/"
}

// SocketURL returns the websocket URL panel clients connect to.
func (s *Server) SocketURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}

// Create implements panel.Factory.
func (s *Server) Create(context.Context) (panel.Surface, error) {
	s.mu.Lock()
	previous := s.view
	s.seq++
	v := newView(s, fmt.Sprintf("panel/%d", s.seq))
	s.view = v
	s.mu.Unlock()

	if previous != nil {
		previous.dispose(true)
	}
	return v, nil
}

// Close disposes the served view and notifies its listeners.
func (s *Server) Close() {
	s.mu.Lock()
	v := s.view
	s.mu.Unlock()
	if v != nil {
		v.dispose(true)
	}
}

func (s *Server) currentView() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Server) detachView(v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == v {
		s.view = nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	v := s.currentView()
	if v == nil {
		http.Error(w, "no panel open", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(v.HTML()))
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	v := s.currentView()
	if v == nil {
		http.Error(w, "no panel open", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("panel ws upgrade", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessage)

	outbound := make(chan any, clientQueue)
	detach, err := v.attach(conn, outbound)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()), deadline())
		return
	}
	defer detach()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case payload := <-outbound:
				_ = conn.SetWriteDeadline(deadline())
				if err := conn.WriteJSON(payload); err != nil {
					s.logger.Debug("panel ws write", "error", err)
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("panel ws read", "error", err)
			}
			return
		}
		v.dispatch(data)
	}
}

// sameOrigin accepts clients without an Origin header (terminal panels) and
// browsers loading the page from this listener.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("latency", time.Since(start).String()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func deadline() time.Time {
	return time.Now().Add(writeWait)
}
