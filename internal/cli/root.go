// Package cli is the wayside command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waystation/wayside/internal/app"
	"github.com/waystation/wayside/internal/config"
	"github.com/waystation/wayside/internal/host/terminal"
	"github.com/waystation/wayside/internal/shared/logging"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wayside",
		Short:         "Editor companion for the way bookmark tool",
		Long:          "wayside records marks into the current waystation and shows them in a panel, either for an editor plugin (serve) or directly from the shell.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "config file (default ~/.config/wayside/config.toml, or $WAYSIDE_CONFIG)")
	cmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMarkCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newNewCmd())
	cmd.AddCommand(newPanelCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wayside version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wayside %s\n", Version)
		},
	}
}

// runtimeFromCmd loads configuration and builds the shared runtime. The
// returned func closes it.
func runtimeFromCmd(cmd *cobra.Command) (*app.Runtime, func(), error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	logger := logging.NewWithLevel("wayside", level)
	rt := app.NewRuntime(cmd.Context(), cfg, logger)
	return rt, func() {
		if err := rt.Close(context.WithoutCancel(cmd.Context())); err != nil {
			logger.Warn("close runtime", "error", err)
		}
	}, nil
}

func terminalEditor(cmd *cobra.Command, pos *terminal.Position) *terminal.Editor {
	return terminal.New(terminal.Options{
		Position:      pos,
		In:            cmd.InOrStdin(),
		Out:           cmd.ErrOrStderr(),
		Interactive:   terminal.IsInteractive(os.Stdin),
		EditorCommand: os.Getenv("EDITOR"),
	})
}
