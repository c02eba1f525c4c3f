package shell

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotReady = errors.New("shell: ready prompt not observed")
	ErrNoSpawn  = errors.New("shell: spawner unavailable")
)

// SpawnError reports a child process that could not be created at all.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("shell: spawn %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitError reports a child that terminated with a failure status.
// Code is -1 when the child was terminated by a signal.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		return fmt.Sprintf("shell: exited with code %d", e.Code)
	}
	return fmt.Sprintf("shell: exited with code %d: %s", e.Code, detail)
}

// StartupError reports a child that never printed the ready prompt, either
// within the startup timeout or before it exited on its own. It unwraps to
// ErrNotReady.
type StartupError struct {
	After  time.Duration
	Exited bool
	Stderr string
}

func (e *StartupError) Error() string {
	reason := fmt.Sprintf("%v after %s", ErrNotReady, e.After)
	if e.Exited {
		reason = fmt.Sprintf("%v: shell exited after %s", ErrNotReady, e.After)
	}
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		return reason
	}
	return reason + ": " + detail
}

func (e *StartupError) Unwrap() error {
	return ErrNotReady
}
