package shell

import (
	"bufio"
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeProcess is an in-memory device shell. The test drives the shell side
// through print/eprint/nextLine/exit while the executor holds the Process side.
type fakeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	lines  chan string
	code   chan int
	once   sync.Once
	killed chan struct{}
}

func newFakeProcess() *fakeProcess {
	p := &fakeProcess{
		lines:  make(chan string, 16),
		code:   make(chan int, 1),
		killed: make(chan struct{}),
	}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(p.stdinR)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
	return p
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderrR }

func (p *fakeProcess) Wait() (int, error) {
	return <-p.code, nil
}

func (p *fakeProcess) Kill() error {
	p.once.Do(func() {
		close(p.killed)
		p.exit(-1)
	})
	return nil
}

func (p *fakeProcess) Close() error {
	_ = p.stdoutR.Close()
	_ = p.stderrR.Close()
	return nil
}

// closeStreams hangs up stdout and stderr while the process keeps running.
func (p *fakeProcess) closeStreams() {
	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
}

func (p *fakeProcess) print(t *testing.T, text string) {
	t.Helper()
	if _, err := io.WriteString(p.stdoutW, text); err != nil {
		t.Fatalf("fake stdout write: %v", err)
	}
}

func (p *fakeProcess) eprint(t *testing.T, text string) {
	t.Helper()
	if _, err := io.WriteString(p.stderrW, text); err != nil {
		t.Fatalf("fake stderr write: %v", err)
	}
}

// exit closes the output streams and publishes the exit code. Only the first
// call decides the code.
func (p *fakeProcess) exit(code int) {
	select {
	case p.code <- code:
	default:
	}
	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
	_ = p.stdinR.Close()
}

func (p *fakeProcess) nextLine(t *testing.T) (string, bool) {
	t.Helper()
	select {
	case line, ok := <-p.lines:
		return line, ok
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stdin line")
		return "", false
	}
}

func (p *fakeProcess) expectNoLine(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case line, ok := <-p.lines:
		if ok {
			t.Fatalf("unexpected stdin line: %q", line)
		}
	case <-time.After(wait):
	}
}

type fakeSpawner struct {
	proc *fakeProcess
	err  error

	mu     sync.Mutex
	spawns int
}

func (s *fakeSpawner) Spawn(context.Context) (Process, error) {
	s.mu.Lock()
	s.spawns++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.proc, nil
}

func (s *fakeSpawner) String() string { return "fake-shell" }

type execResult struct {
	out string
	err error
}

func startExecute(ctx context.Context, e *Executor, command string) <-chan execResult {
	done := make(chan execResult, 1)
	go func() {
		out, err := e.Execute(ctx, command)
		done <- execResult{out: out, err: err}
	}()
	return done
}

func awaitResult(t *testing.T, done <-chan execResult) execResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for Execute")
		return execResult{}
	}
}
