// Package app assembles wayside from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/waystation/wayside/internal/commands"
	"github.com/waystation/wayside/internal/config"
	"github.com/waystation/wayside/internal/host"
	"github.com/waystation/wayside/internal/host/stdio"
	"github.com/waystation/wayside/internal/journal"
	"github.com/waystation/wayside/internal/journal/sqlite"
	"github.com/waystation/wayside/internal/panel"
	"github.com/waystation/wayside/internal/state"
	"github.com/waystation/wayside/internal/way"
	"github.com/waystation/wayside/internal/webview"
)

const shutdownTimeout = 10 * time.Second

// Runtime holds what every entry point shares: the bridge, the state
// store and the journal.
type Runtime struct {
	Config  config.Config
	Logger  *slog.Logger
	Bridge  *way.Client
	Store   *state.Store
	Journal journal.Store
}

// NewRuntime builds a Runtime. A journal that cannot be opened is logged
// and replaced by one that discards entries.
func NewRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) *Runtime {
	runner := way.ShellRunner{Shell: cfg.Way.Shell, Timeout: cfg.Way.Timeout, Logger: logger.With("component", "way")}
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Bridge:  way.New(runner, cfg.Way.Binary, logger.With("component", "bridge")),
		Store:   state.New(),
		Journal: journal.Nop{},
	}
	if cfg.Journal.Enabled {
		store, err := sqlite.Open(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable", "path", cfg.Journal.Path, "error", err)
		} else {
			rt.Journal = store
		}
	}
	return rt
}

// Handlers returns command handlers bound to editor. panels may be nil for
// entry points without a panel.
func (rt *Runtime) Handlers(ctx context.Context, editor host.Editor, panels commands.Panels) *commands.Handlers {
	return commands.New(ctx, commands.Deps{
		Bridge:       rt.Bridge,
		Store:        rt.Store,
		Panels:       panels,
		Editor:       editor,
		Journal:      rt.Journal,
		Logger:       rt.Logger.With("component", "commands"),
		RefreshDelay: rt.Config.Panel.RefreshDelay,
	})
}

// Close releases the journal.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.Journal.Close(ctx)
}

// Serve runs the editor host: the panel listener on loopback and the
// editor protocol on in/out. It returns when the editor closes in or ctx is
// cancelled, after disposing the panel and unregistering every command.
func Serve(ctx context.Context, rt *Runtime, in io.Reader, out io.Writer) error {
	logger := rt.Logger
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", rt.Config.Panel.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", rt.Config.Panel.Listen, err)
	}

	conn := stdio.New(in, out, logger.With("component", "editor"))
	web := webview.NewServer(logger.With("component", "webview"), conn.RevealPanel)
	web.SetBaseURL("http://" + ln.Addr().String())

	manager := panel.NewManager(ctx, web, logger.With("component", "panel"))
	handlers := rt.Handlers(ctx, conn, manager)
	manager.SetHandler(handlers)

	registry := commands.NewRegistry()
	release, err := handlers.Register(registry)
	if err != nil {
		_ = ln.Close()
		return err
	}

	httpServer := &http.Server{Handler: web, ReadHeaderTimeout: 10 * time.Second}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("panel server starting", "url", web.URL())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	handlers.Activate(ctx)

	editorErr := make(chan error, 1)
	go func() { editorErr <- conn.Serve(ctx, registry) }()

	var runErr error
	select {
	case err := <-editorErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("editor protocol: %w", err)
		}
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("panel server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("deactivating")
	release()
	registry.Dispose()
	manager.Dispose()
	handlers.Close()
	web.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
