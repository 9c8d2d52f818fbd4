package way

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// Runner executes one shell command line and returns its stdout.
type Runner interface {
	Run(ctx context.Context, commandLine string) ([]byte, error)
}

// ShellRunner runs command lines through "<shell> -c".
type ShellRunner struct {
	Shell   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run spawns a fresh process for every call.
func (r ShellRunner) Run(ctx context.Context, commandLine string) ([]byte, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", commandLine)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// A killed shell can leave children holding the output pipes.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if r.Logger != nil {
		r.Logger.Debug("way exec", "command", commandLine, "duration", time.Since(start).String(), "error", err)
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return nil, &ExitError{Command: commandLine, Code: code, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}
