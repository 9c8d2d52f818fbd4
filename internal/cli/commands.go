package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	"github.com/waystation/wayside/internal/app"
	"github.com/waystation/wayside/internal/commands"
	"github.com/waystation/wayside/internal/host/terminal"
	"github.com/waystation/wayside/internal/panel"
	"github.com/waystation/wayside/internal/tui"
	"github.com/waystation/wayside/internal/webview"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as an editor host over stdin/stdout",
		Long:  "serve speaks the wayside editor protocol, one JSON object per line, on stdin and stdout. Logs go to stderr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRT, err := runtimeFromCmd(cmd)
			if err != nil {
				return err
			}
			defer closeRT()
			return app.Serve(cmd.Context(), rt, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newMarkCmd() *cobra.Command {
	var (
		line, column int
		snippet      string
	)
	cmd := &cobra.Command{
		Use:   "mark <path>",
		Short: "Add a mark to the current waystation",
		Long:  "mark records path:line:column in the current waystation. Line and column are one-based. Without --context the text of the line is read from the file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRT, err := runtimeFromCmd(cmd)
			if err != nil {
				return err
			}
			defer closeRT()

			pos := &terminal.Position{Path: args[0], Line: line, Column: column, Context: snippet}
			h := rt.Handlers(cmd.Context(), terminalEditor(cmd, pos), nil)
			defer h.Close()
			if err := h.AddMarkAtCursor(cmd.Context()); err != nil {
				return err
			}
			ws, _, _ := rt.Store.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s:%d:%d in %s (%d marks)\n", args[0], line, column, displayName(ws.Name, string(ws.ID)), len(ws.Marks))
			return nil
		},
	}
	cmd.Flags().IntVarP(&line, "line", "l", 1, "one-based line")
	cmd.Flags().IntVarP(&column, "column", "c", 1, "one-based column")
	cmd.Flags().StringVar(&snippet, "context", "", "context text (default: the line read from the file)")
	return cmd
}

func newShowCmd() *cobra.Command {
	var (
		format string
		useTUI bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current waystation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			rt, closeRT, err := runtimeFromCmd(cmd)
			if err != nil {
				return err
			}
			defer closeRT()

			if useTUI {
				return showInTerminal(cmd.Context(), rt)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ws, err := rt.Bridge.Current(ctx)
			if err != nil {
				return err
			}
			return writeWaystation(cmd.OutOrStdout(), format, ws)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", formatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "open an interactive terminal panel")
	return cmd
}

// showInTerminal runs the panel stack in-process and attaches the terminal
// panel to it. Documents are not opened while the terminal is taken over.
func showInTerminal(ctx context.Context, rt *app.Runtime) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", rt.Config.Panel.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", rt.Config.Panel.Listen, err)
	}
	web := webview.NewServer(rt.Logger.With("component", "webview"), nil)
	web.SetBaseURL("http://" + ln.Addr().String())
	srv := &http.Server{Handler: web, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error("panel server", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
	}()

	editor := terminal.New(terminal.Options{Out: io.Discard})
	manager := panel.NewManager(ctx, web, rt.Logger.With("component", "panel"))
	h := rt.Handlers(ctx, editor, manager)
	manager.SetHandler(h)
	defer func() {
		manager.Dispose()
		h.Close()
		web.Close()
	}()

	h.Activate(ctx)
	if err := h.ShowCurrentWaystation(ctx); err != nil {
		return err
	}
	return tui.Run(ctx, web.SocketURL())
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open [name]",
		Short: "Switch to another waystation",
		Long:  "open switches the current waystation. Without a name it prompts with the available waystations.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRT, err := runtimeFromCmd(cmd)
			if err != nil {
				return err
			}
			defer closeRT()

			h := rt.Handlers(cmd.Context(), terminalEditor(cmd, nil), nil)
			defer h.Close()
			before := rt.Store.Version()
			if len(args) == 0 {
				err = h.OpenWaystation(cmd.Context())
			} else {
				err = h.OpenNamed(cmd.Context(), args[0])
			}
			var notFound *commands.NotFoundError
			if errors.As(err, &notFound) {
				return withSuggestion(cmd.Context(), rt, notFound)
			}
			if err != nil {
				return err
			}
			if rt.Store.Version() == before {
				return nil
			}
			ws, _, _ := rt.Store.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "Opened %s\n", displayName(ws.Name, string(ws.ID)))
			return nil
		},
	}
}

func withSuggestion(ctx context.Context, rt *app.Runtime, nf *commands.NotFoundError) error {
	list, err := rt.Bridge.List(ctx)
	if err != nil {
		return nf
	}
	if best, ok := closest(nf.Name, commands.Names(list)); ok {
		return fmt.Errorf("%w (did you mean %q?)", nf, best)
	}
	return nf
}

// closest returns the candidate with the smallest edit distance to name,
// provided the distance is small relative to the name's length.
func closest(name string, candidates []string) (string, bool) {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := max(2, len([]rune(name))/3)
	if bestDist < 0 || bestDist > limit {
		return "", false
	}
	return best, true
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new [name]",
		Short: "Create a waystation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeRT, err := runtimeFromCmd(cmd)
			if err != nil {
				return err
			}
			defer closeRT()

			h := rt.Handlers(cmd.Context(), terminalEditor(cmd, nil), nil)
			defer h.Close()
			before := rt.Store.Version()
			if len(args) == 0 {
				err = h.NewWaystation(cmd.Context())
			} else {
				err = h.NewNamed(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			if rt.Store.Version() == before {
				return nil
			}
			ws, _, _ := rt.Store.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", displayName(ws.Name, string(ws.ID)))
			return nil
		},
	}
}

func newPanelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "panel <ws-url>",
		Short: "Attach a terminal panel to a running wayside host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(cmd.Context(), args[0])
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent command outcomes from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			rt, closeRT, err := runtimeFromCmd(cmd)
			if err != nil {
				return err
			}
			defer closeRT()
			if !rt.Config.Journal.Enabled {
				return fmt.Errorf("journal is disabled (journal.enabled=false)")
			}
			entries, err := rt.Journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeEntries(cmd.OutOrStdout(), format, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVarP(&format, "format", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "(unnamed)"
}
