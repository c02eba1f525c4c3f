package shell

import (
	"context"
	"io"
	"strings"
)

// Process is one running device shell with all three standard streams piped.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and reports its exit code, -1 when
	// it was terminated by a signal. The error is non-nil only when the exit
	// status itself could not be determined.
	Wait() (int, error)
	Kill() error
	// Close releases the output streams so blocked readers return. It is
	// safe to call after Wait and more than once.
	Close() error
}

// Spawner starts fresh device shell processes.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
	String() string
}

func joinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return shellEscape(cmd)
	}

	var builder strings.Builder
	builder.WriteString(shellEscape(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
