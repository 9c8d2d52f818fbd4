package way

import (
	"fmt"
	"strings"
)

// ExitError reports a way invocation that could not run or exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("way: %s: exit %d", e.Command, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// ParseError reports output from way that is not the JSON we expected.
type ParseError struct {
	Command string
	Output  string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("way: %s: malformed json: %v", e.Command, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
