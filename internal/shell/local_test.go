package shell

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/danmuck/matterctl/internal/testutil/testlog"
)

const fakeChipTool = `
printf '[INFO] Storage path: /tmp/chip_tool_kvs\n'
printf '>>> '
read -r cmd
printf '\nexecuted: %s\n' "$cmd"
read -r quit
if [ "$quit" != "quit" ]; then
	echo "expected quit, got $quit" >&2
	exit 9
fi
exit 0
`

func shSpawner(t *testing.T, script string) LocalSpawner {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh unavailable")
	}
	return LocalSpawner{Path: "/bin/sh", Args: []string{"-c", script}}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 50 * time.Millisecond
	cfg.StartupTimeout = 5 * time.Second
	cfg.ExitGrace = 2 * time.Second
	return cfg
}

func TestLocalSpawnerRoundTrip(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor(shSpawner(t, fakeChipTool), fastConfig(), WithLogger(testlog.Logger(t)))

	out, err := e.Execute(context.Background(), "onoff on 4 1")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out != "executed: onoff on 4 1" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLocalSpawnerNonZeroExit(t *testing.T) {
	testlog.Start(t)
	script := `printf '>>> '; read -r cmd; printf 'out\n'; printf 'device offline\n' >&2; exit 7`
	e := NewExecutor(shSpawner(t, script), fastConfig(), WithLogger(testlog.Logger(t)))

	out, err := e.Execute(context.Background(), "onoff on 4 1")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 7 || exitErr.Stderr != "device offline\n" {
		t.Fatalf("unexpected exit error: %+v", exitErr)
	}
	if out != "" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLocalSpawnerMissingExecutable(t *testing.T) {
	testlog.Start(t)
	spawner := LocalSpawner{Path: "/nonexistent/chip-tool", Args: []string{"interactive", "start"}}
	e := NewExecutor(spawner, fastConfig(), WithLogger(testlog.Logger(t)))

	_, err := e.Execute(context.Background(), "onoff on 1 1")
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if spawnErr.Shell != "/nonexistent/chip-tool interactive start" {
		t.Fatalf("unexpected shell description: %q", spawnErr.Shell)
	}
}

func TestLocalSpawnerEmptyPath(t *testing.T) {
	testlog.Start(t)
	if _, err := (LocalSpawner{}).Spawn(context.Background()); !errors.Is(err, ErrNoSpawn) {
		t.Fatalf("expected ErrNoSpawn, got %v", err)
	}
}

// detached redirects the shell's output away from the pipes and keeps running.
const detached = `exec >/dev/null 2>/dev/null; sleep 4`

func TestLocalSpawnerDetachedOutputHonoursStartupTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := fastConfig()
	cfg.StartupTimeout = 300 * time.Millisecond
	e := NewExecutor(shSpawner(t, detached), cfg, WithLogger(testlog.Logger(t)))

	start := time.Now()
	_, err := e.Execute(context.Background(), "onoff on 4 1")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("unexpected elapsed time: %s", elapsed)
	}
}

func TestLocalSpawnerDetachedOutputHonoursContext(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor(shSpawner(t, detached), fastConfig(), WithLogger(testlog.Logger(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := e.Execute(ctx, "onoff on 4 1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("unexpected elapsed time: %s", elapsed)
	}
}

func TestLocalSpawnerCleanExitBeforeReady(t *testing.T) {
	testlog.Start(t)
	script := `printf 'usage: chip-tool\n'; exit 0`
	e := NewExecutor(shSpawner(t, script), fastConfig(), WithLogger(testlog.Logger(t)))

	out, err := e.Execute(context.Background(), "onoff on 4 1")
	var startupErr *StartupError
	if !errors.As(err, &startupErr) || !startupErr.Exited {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Fatalf("unexpected output: %q", out)
	}
}
