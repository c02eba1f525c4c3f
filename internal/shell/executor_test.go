package shell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/matterctl/internal/testutil/testlog"
)

func newMockExecutor(t *testing.T, spawner Spawner) (*Executor, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	return NewExecutor(spawner, DefaultConfig(), WithClock(mock), WithLogger(testlog.Logger(t))), mock
}

// advanceUntil moves the mock clock forward in steps until Execute returns.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, done <-chan execResult) execResult {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-done:
			return res
		case <-deadline:
			t.Fatalf("timed out advancing mock clock")
			return execResult{}
		case <-time.After(5 * time.Millisecond):
			mock.Add(step)
		}
	}
}

func TestExecuteSubmitsOnceAfterReadyPrompt(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff read on-off 12 1")

	proc.print(t, "[INFO] Loaded module chip\n")
	proc.expectNoLine(t, 50*time.Millisecond)

	// marker split across two writes
	proc.print(t, ">>")
	proc.expectNoLine(t, 20*time.Millisecond)
	proc.print(t, "> ")

	line, ok := proc.nextLine(t)
	if !ok || line != "onoff read on-off 12 1" {
		t.Fatalf("unexpected submitted line: ok=%v line=%q", ok, line)
	}

	// a repeated marker must not resubmit
	proc.print(t, "\n[INFO] sending read\n>>> \nOnOff: TRUE for endpoint 1\n")
	proc.expectNoLine(t, 50*time.Millisecond)

	mock.Add(DefaultSettleDelay)
	line, ok = proc.nextLine(t)
	if !ok || line != DefaultExitCommand {
		t.Fatalf("expected exit command after settle, ok=%v line=%q", ok, line)
	}
	if _, ok := proc.nextLine(t); ok {
		t.Fatalf("expected stdin closed after exit command")
	}
	proc.exit(0)

	res := awaitResult(t, done)
	if res.err != nil {
		t.Fatalf("execute failed: %v", res.err)
	}
	if res.out != "OnOff: TRUE for endpoint 1" {
		t.Fatalf("unexpected output: %q", res.out)
	}
}

func TestExecuteExitCommandWaitsForSettle(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff on 1 1")
	proc.print(t, DefaultReadyMarker+"\n")
	if line, _ := proc.nextLine(t); line != "onoff on 1 1" {
		t.Fatalf("unexpected submitted line: %q", line)
	}

	mock.Add(DefaultSettleDelay - time.Millisecond)
	proc.expectNoLine(t, 50*time.Millisecond)

	proc.print(t, "late response\n")
	mock.Add(time.Millisecond)
	if line, _ := proc.nextLine(t); line != DefaultExitCommand {
		t.Fatalf("expected exit command, got %q", line)
	}
	proc.exit(0)

	res := awaitResult(t, done)
	if res.err != nil || res.out != "late response" {
		t.Fatalf("unexpected result: out=%q err=%v", res.out, res.err)
	}
}

func TestExecuteNonZeroExitCarriesCodeAndStderr(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, _ := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff off 7 2")
	proc.print(t, DefaultReadyMarker)
	proc.nextLine(t)
	proc.print(t, "partial stdout that must not leak\n")
	proc.eprint(t, "CHIP Error 0x32: Timeout\n")
	proc.eprint(t, "session lost\n")
	proc.exit(3)

	res := awaitResult(t, done)
	var exitErr *ExitError
	if !errors.As(res.err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", res.err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("unexpected exit code: %d", exitErr.Code)
	}
	if exitErr.Stderr != "CHIP Error 0x32: Timeout\nsession lost\n" {
		t.Fatalf("unexpected stderr: %q", exitErr.Stderr)
	}
	if res.out != "" {
		t.Fatalf("stdout leaked into failed result: %q", res.out)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("exec: \"chip-tool\": executable file not found in $PATH")
	spawner := &fakeSpawner{err: cause}
	e, _ := newMockExecutor(t, spawner)

	out, err := e.Execute(context.Background(), "onoff on 1 1")
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("spawn error should unwrap to cause, got %v", err)
	}
	if spawnErr.Shell != "fake-shell" {
		t.Fatalf("unexpected shell: %q", spawnErr.Shell)
	}
	if out != "" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestExecuteSilentSuccessWhenDeviceNeverAnswers(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff toggle 1 1")
	proc.print(t, "[INFO] Node started\n>>> ")
	proc.nextLine(t)
	mock.Add(DefaultSettleDelay)
	if line, _ := proc.nextLine(t); line != DefaultExitCommand {
		t.Fatalf("expected exit command, got %q", line)
	}
	proc.exit(0)

	res := awaitResult(t, done)
	if res.err != nil {
		t.Fatalf("expected silent success, got %v", res.err)
	}
	if res.out != "" {
		t.Fatalf("expected empty output, got %q", res.out)
	}
}

func TestExecuteStartupTimeoutKillsShell(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff on 1 1")
	proc.print(t, "[WARN] waiting for storage\n")
	proc.eprint(t, "no fabric\n")

	res := advanceUntil(t, mock, time.Second, done)
	var startupErr *StartupError
	if !errors.As(res.err, &startupErr) || !errors.Is(res.err, ErrNotReady) {
		t.Fatalf("expected StartupError wrapping ErrNotReady, got %v", res.err)
	}
	if startupErr.Stderr != "no fabric\n" {
		t.Fatalf("unexpected stderr: %q", startupErr.Stderr)
	}
	select {
	case <-proc.killed:
	default:
		t.Fatalf("expected shell to be killed")
	}
	if line, ok := <-proc.lines; ok {
		t.Fatalf("no command should be written, got %q", line)
	}
}

func TestExecuteExitGraceKillsLingeringShell(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff on 1 1")
	proc.print(t, DefaultReadyMarker)
	proc.nextLine(t)

	res := advanceUntil(t, mock, 500*time.Millisecond, done)
	var exitErr *ExitError
	if !errors.As(res.err, &exitErr) || exitErr.Code != -1 {
		t.Fatalf("expected signal ExitError, got %v", res.err)
	}
	select {
	case <-proc.killed:
	default:
		t.Fatalf("expected shell to be killed")
	}
}

func TestExecuteCancellationKillsShell(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, _ := newMockExecutor(t, &fakeSpawner{proc: proc})

	ctx, cancel := context.WithCancel(context.Background())
	done := startExecute(ctx, e, "onoff on 1 1")
	proc.print(t, "[INFO] starting\n")
	cancel()

	res := awaitResult(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	select {
	case <-proc.killed:
	default:
		t.Fatalf("expected shell to be killed")
	}
}

func TestExecuteCanceledBeforeSpawn(t *testing.T) {
	testlog.Start(t)
	spawner := &fakeSpawner{proc: newFakeProcess()}
	e, _ := newMockExecutor(t, spawner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Execute(ctx, "onoff on 1 1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if spawner.spawns != 0 {
		t.Fatalf("expected no spawn, got %d", spawner.spawns)
	}
}

func TestExecuteDecodesMultiByteAcrossChunks(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "basicinformation read node-label 1 0")
	proc.print(t, DefaultReadyMarker+"\n")
	proc.nextLine(t)
	label := "Küche"
	raw := []byte("label: " + label + "\n")
	split := strings.Index(string(raw), "ü") + 1
	proc.print(t, string(raw[:split]))
	proc.print(t, string(raw[split:]))
	mock.Add(DefaultSettleDelay)
	proc.nextLine(t)
	proc.exit(0)

	res := awaitResult(t, done)
	if res.err != nil || res.out != "label: Küche" {
		t.Fatalf("unexpected result: out=%q err=%v", res.out, res.err)
	}
}

func TestExecuteCancellationAfterStreamsCloseKillsShell(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, _ := newMockExecutor(t, &fakeSpawner{proc: proc})

	ctx, cancel := context.WithCancel(context.Background())
	done := startExecute(ctx, e, "onoff on 1 1")
	proc.closeStreams()
	select {
	case res := <-done:
		t.Fatalf("unexpected return while shell still running: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()

	res := awaitResult(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("unexpected error: %v", res.err)
	}
	select {
	case <-proc.killed:
	default:
		t.Fatalf("unexpected survivor: shell was not killed")
	}
}

func TestExecuteStartupTimeoutAfterStreamsClose(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, mock := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff on 1 1")
	proc.closeStreams()

	res := advanceUntil(t, mock, time.Second, done)
	if !errors.Is(res.err, ErrNotReady) {
		t.Fatalf("unexpected error: %v", res.err)
	}
	select {
	case <-proc.killed:
	default:
		t.Fatalf("unexpected survivor: shell was not killed")
	}
}

func TestExecuteCleanExitBeforeReadyFails(t *testing.T) {
	testlog.Start(t)
	proc := newFakeProcess()
	e, _ := newMockExecutor(t, &fakeSpawner{proc: proc})

	done := startExecute(context.Background(), e, "onoff on 1 1")
	proc.print(t, "[INFO] usage: chip-tool <cluster> <command>\n")
	proc.eprint(t, "interactive mode unavailable\n")
	proc.exit(0)

	res := awaitResult(t, done)
	var startupErr *StartupError
	if !errors.As(res.err, &startupErr) || !errors.Is(res.err, ErrNotReady) {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if !startupErr.Exited {
		t.Fatalf("unexpected startup error without exit flag: %+v", startupErr)
	}
	if startupErr.Stderr != "interactive mode unavailable\n" {
		t.Fatalf("unexpected stderr: %q", startupErr.Stderr)
	}
	if res.out != "" {
		t.Fatalf("unexpected output: %q", res.out)
	}
}
