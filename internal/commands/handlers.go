package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/waystation/wayside/internal/host"
	"github.com/waystation/wayside/internal/journal"
	"github.com/waystation/wayside/internal/panel"
	"github.com/waystation/wayside/internal/state"
	"github.com/waystation/wayside/internal/way"
)

// DefaultRefreshDelay is how long Show waits before refetching.
const DefaultRefreshDelay = 500 * time.Millisecond

// ErrBusy is returned when a guarded operation is already running.
var ErrBusy = panel.ErrBusy

// updateResource guards edits submitted from the panel.
const updateResource = "waystation:update"

// Bridge is the subset of way.Client the handlers use.
type Bridge interface {
	AddMark(ctx context.Context, path string, line, column int, snippet string) error
	Current(ctx context.Context) (way.Waystation, error)
	List(ctx context.Context) ([]way.Summary, error)
	New(ctx context.Context, name string) (string, error)
	Open(ctx context.Context, id way.ID) (string, error)
	ValidateAndUpdate(ctx context.Context, ws way.Waystation) (way.ValidationResult, error)
}

// Panels is the subset of panel.Manager the handlers use.
type Panels interface {
	CreateOrShow(ctx context.Context) (*panel.Panel, bool, error)
	Post(ctx context.Context, msg panel.Message) (bool, error)
}

// Deps are the collaborators of Handlers. Panels and Journal may be nil.
type Deps struct {
	Bridge       Bridge
	Store        *state.Store
	Panels       Panels
	Editor       host.Editor
	Journal      journal.Recorder
	Logger       *slog.Logger
	RefreshDelay time.Duration
}

type timer interface{ Stop() bool }

// Handlers implements the editor commands and the panel.Handler callbacks.
type Handlers struct {
	ctx    context.Context
	cancel context.CancelFunc

	bridge  Bridge
	store   *state.Store
	panels  Panels
	editor  host.Editor
	journal journal.Recorder
	logger  *slog.Logger
	delay   time.Duration

	afterFunc func(time.Duration, func()) timer
	refresh   singleflight.Group
	guards    map[string]*semaphore.Weighted

	timersMu sync.Mutex
	timers   map[timer]struct{}
}

var _ panel.Handler = (*Handlers)(nil)

// New constructs Handlers. ctx bounds work that outlives a single command,
// such as the delayed refresh after Show.
func New(ctx context.Context, deps Deps) *Handlers {
	ctx, cancel := context.WithCancel(ctx)
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rec := deps.Journal
	if rec == nil {
		rec = journal.Nop{}
	}
	delay := deps.RefreshDelay
	if delay <= 0 {
		delay = DefaultRefreshDelay
	}
	store := deps.Store
	if store == nil {
		store = state.New()
	}
	h := &Handlers{
		ctx:     ctx,
		cancel:  cancel,
		bridge:  deps.Bridge,
		store:   store,
		panels:  deps.Panels,
		editor:  deps.Editor,
		journal: rec,
		logger:  logger,
		delay:   delay,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		guards: make(map[string]*semaphore.Weighted),
		timers: make(map[timer]struct{}),
	}
	for _, id := range []string{AddMarkAtCursor, OpenWaystation, NewWaystation, updateResource} {
		h.guards[id] = semaphore.NewWeighted(1)
	}
	return h
}

// Register binds every command to r. The returned func removes them all.
func (h *Handlers) Register(r *Registry) (func(), error) {
	bindings := []struct {
		id string
		fn HandlerFunc
	}{
		{AddMarkAtCursor, h.AddMarkAtCursor},
		{ShowCurrentWaystation, h.ShowCurrentWaystation},
		{OpenWaystation, h.OpenWaystation},
		{NewWaystation, h.NewWaystation},
	}
	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, b := range bindings {
		release, err := r.Register(b.id, b.fn)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// Activate performs the initial fetch. A failure is logged and leaves the
// store empty.
func (h *Handlers) Activate(ctx context.Context) {
	ws, err := h.Refresh(ctx)
	if err != nil {
		h.logger.Error("initial fetch of current waystation failed", "error", err)
		return
	}
	h.logger.Info("activated", "waystation", ws.ID, "marks", len(ws.Marks))
}

// Close cancels pending delayed refreshes.
func (h *Handlers) Close() {
	h.cancel()
	h.timersMu.Lock()
	defer h.timersMu.Unlock()
	for t := range h.timers {
		t.Stop()
	}
	clear(h.timers)
}

// Store returns the state container the handlers write to.
func (h *Handlers) Store() *state.Store { return h.store }

// Refresh fetches the current waystation and commits it. Concurrent calls
// share one fetch. When a newer value was committed while the fetch was in
// flight, the newer value is returned.
func (h *Handlers) Refresh(ctx context.Context) (way.Waystation, error) {
	v, err, _ := h.refresh.Do("current", func() (any, error) {
		version := h.store.Begin()
		ws, err := h.bridge.Current(ctx)
		if err != nil {
			return way.Waystation{}, err
		}
		if !h.store.Commit(version, ws) {
			h.logger.Debug("discarded stale waystation", "version", version)
			current, _, _ := h.store.Get()
			return current, nil
		}
		return ws, nil
	})
	return v.(way.Waystation), err
}

// refetch is Refresh for callers that just changed the waystation. A fetch
// already in flight may predate the change, so it is not joined; its result
// carries an older version and loses to this one.
func (h *Handlers) refetch(ctx context.Context) (way.Waystation, error) {
	h.refresh.Forget("current")
	return h.Refresh(ctx)
}

// AddMarkAtCursor records a mark at the active cursor.
func (h *Handlers) AddMarkAtCursor(ctx context.Context) error {
	return h.guarded(ctx, AddMarkAtCursor, func(ctx context.Context) (outcome, error) {
		cursor, ok, err := h.editor.ActiveCursor(ctx)
		if err != nil {
			return outcome{}, fmt.Errorf("read active cursor: %w", err)
		}
		if !ok {
			return outcome{kind: journal.OutcomeCancelled, detail: "no active editor"}, nil
		}
		line, column := cursor.Line+1, cursor.Character+1
		if err := h.bridge.AddMark(ctx, cursor.Path, line, column, cursor.Text); err != nil {
			return outcome{}, err
		}
		detail := fmt.Sprintf("%s:%d:%d", cursor.Path, line, column)
		ws, err := h.refetch(ctx)
		if err != nil {
			return outcome{detail: detail}, fmt.Errorf("refresh after mark: %w", err)
		}
		h.post(ctx, panel.Refresh(ws))
		return outcome{kind: journal.OutcomeOK, waystation: ws.ID, detail: detail}, nil
	})
}

// ShowCurrentWaystation creates or reveals the panel, posts the cached
// waystation, and posts a fresh copy once after the refresh delay.
func (h *Handlers) ShowCurrentWaystation(ctx context.Context) error {
	return h.journaled(ctx, ShowCurrentWaystation, func(ctx context.Context) (outcome, error) {
		if h.panels == nil {
			return outcome{}, fmt.Errorf("show panel: %w", host.ErrUnsupported)
		}
		_, created, err := h.panels.CreateOrShow(ctx)
		if err != nil {
			return outcome{}, err
		}
		ws, _, loaded := h.store.Get()
		if loaded {
			h.post(ctx, panel.Current(ws))
		}
		h.scheduleRefresh()
		detail := "revealed"
		if created {
			detail = "created"
		}
		return outcome{kind: journal.OutcomeOK, waystation: ws.ID, detail: detail}, nil
	})
}

// OpenWaystation prompts for a waystation by name and opens it.
func (h *Handlers) OpenWaystation(ctx context.Context) error {
	return h.guarded(ctx, OpenWaystation, func(ctx context.Context) (outcome, error) {
		list, err := h.bridge.List(ctx)
		if err != nil {
			return outcome{}, err
		}
		choice, ok, err := h.editor.QuickPick(ctx, "Select a waystation", Names(list))
		if err != nil {
			return outcome{}, fmt.Errorf("pick waystation: %w", err)
		}
		if !ok {
			return outcome{kind: journal.OutcomeCancelled}, nil
		}
		return h.openByName(ctx, list, choice)
	})
}

// OpenNamed opens the waystation called name without prompting.
func (h *Handlers) OpenNamed(ctx context.Context, name string) error {
	return h.guarded(ctx, OpenWaystation, func(ctx context.Context) (outcome, error) {
		list, err := h.bridge.List(ctx)
		if err != nil {
			return outcome{}, err
		}
		return h.openByName(ctx, list, name)
	})
}

// NewWaystation prompts for a name and creates a waystation.
func (h *Handlers) NewWaystation(ctx context.Context) error {
	return h.guarded(ctx, NewWaystation, func(ctx context.Context) (outcome, error) {
		name, ok, err := h.editor.InputBox(ctx, "Name of the new waystation")
		if err != nil {
			return outcome{}, fmt.Errorf("read waystation name: %w", err)
		}
		if !ok || name == "" {
			return outcome{kind: journal.OutcomeCancelled}, nil
		}
		return h.create(ctx, name)
	})
}

// NewNamed creates a waystation called name without prompting.
func (h *Handlers) NewNamed(ctx context.Context, name string) error {
	return h.guarded(ctx, NewWaystation, func(ctx context.Context) (outcome, error) {
		if name == "" {
			return outcome{kind: journal.OutcomeCancelled}, nil
		}
		return h.create(ctx, name)
	})
}

// Update validates ws and applies it when valid. The updated waystation is
// stored on success.
func (h *Handlers) Update(ctx context.Context, ws way.Waystation) (way.ValidationResult, error) {
	var result way.ValidationResult
	err := h.guarded(ctx, updateResource, func(ctx context.Context) (outcome, error) {
		var err error
		result, err = h.bridge.ValidateAndUpdate(ctx, ws)
		if err != nil {
			return outcome{waystation: ws.ID}, err
		}
		if !result.Success {
			return outcome{kind: journal.OutcomeRejected, waystation: ws.ID, detail: string(result.Error)}, nil
		}
		updated := ws
		if result.Waystation != nil {
			updated = *result.Waystation
		}
		h.store.Set(updated)
		return outcome{kind: journal.OutcomeOK, waystation: updated.ID}, nil
	})
	return result, err
}

// OpenDocument opens the mark's file beside the panel.
func (h *Handlers) OpenDocument(ctx context.Context, mark way.Mark) error {
	line, column := mark.Line, mark.Column
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}
	return h.editor.OpenDocument(ctx, host.Location{Path: mark.Path, Line: line, Column: column, Beside: true})
}

// Names returns the non-empty names of list in order.
func Names(list []way.Summary) []string {
	names := make([]string, 0, len(list))
	for _, s := range list {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// NotFoundError reports a name with no matching waystation.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no waystation named %q", e.Name)
}

func (h *Handlers) openByName(ctx context.Context, list []way.Summary, name string) (outcome, error) {
	var id way.ID
	found := false
	for _, s := range list {
		if s.Name == name {
			id, found = s.ID, true
			break
		}
	}
	if !found {
		return outcome{detail: name}, &NotFoundError{Name: name}
	}
	if _, err := h.bridge.Open(ctx, id); err != nil {
		return outcome{waystation: id}, err
	}
	ws, err := h.refetch(ctx)
	if err != nil {
		return outcome{waystation: id}, fmt.Errorf("refresh after open: %w", err)
	}
	h.post(ctx, panel.Refresh(ws))
	return outcome{kind: journal.OutcomeOK, waystation: id, detail: name}, nil
}

func (h *Handlers) create(ctx context.Context, name string) (outcome, error) {
	if _, err := h.bridge.New(ctx, name); err != nil {
		return outcome{detail: name}, err
	}
	ws, err := h.refetch(ctx)
	if err != nil {
		return outcome{detail: name}, fmt.Errorf("refresh after new: %w", err)
	}
	h.post(ctx, panel.Refresh(ws))
	return outcome{kind: journal.OutcomeOK, waystation: ws.ID, detail: name}, nil
}

func (h *Handlers) post(ctx context.Context, msg panel.Message) {
	if h.panels == nil {
		return
	}
	if _, err := h.panels.Post(ctx, msg); err != nil {
		h.logger.Warn("post to panel", "type", msg.Type, "error", err)
	}
}

func (h *Handlers) scheduleRefresh() {
	var t timer
	h.timersMu.Lock()
	defer h.timersMu.Unlock()
	if h.ctx.Err() != nil {
		return
	}
	t = h.afterFunc(h.delay, func() {
		h.timersMu.Lock()
		delete(h.timers, t)
		h.timersMu.Unlock()

		ws, err := h.Refresh(h.ctx)
		if err != nil {
			h.logger.Warn("delayed refresh", "error", err)
			return
		}
		h.post(h.ctx, panel.Current(ws))
	})
	h.timers[t] = struct{}{}
}

type outcome struct {
	kind       journal.Outcome
	waystation way.ID
	detail     string
}

func (h *Handlers) guarded(ctx context.Context, resource string, fn func(context.Context) (outcome, error)) error {
	sem := h.guards[resource]
	if !sem.TryAcquire(1) {
		err := fmt.Errorf("%s: %w", resource, ErrBusy)
		h.logger.Warn("rejected concurrent invocation", "command", resource)
		h.record(resource, outcome{kind: journal.OutcomeBusy}, nil)
		return err
	}
	defer sem.Release(1)
	return h.journaled(ctx, resource, fn)
}

func (h *Handlers) journaled(ctx context.Context, command string, fn func(context.Context) (outcome, error)) error {
	out, err := fn(ctx)
	h.record(command, out, err)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

func (h *Handlers) record(command string, out outcome, err error) {
	if err != nil {
		out.kind = journal.OutcomeError
		if out.detail == "" {
			out.detail = err.Error()
		} else {
			out.detail += ": " + err.Error()
		}
	}
	entry := journal.Entry{
		OccurredAt:   time.Now(),
		Command:      command,
		WaystationID: string(out.waystation),
		Outcome:      out.kind,
		Detail:       out.detail,
	}
	if err := h.journal.Record(context.WithoutCancel(h.ctx), entry); err != nil {
		h.logger.Warn("journal write failed", "command", command, "error", err)
	}
}
