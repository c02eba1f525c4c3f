package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// LocalSpawner starts the device shell on this host through os/exec.
type LocalSpawner struct {
	Path string
	Args []string
	// Env entries are appended to the inherited environment.
	Env []string
	Dir string
}

func (s LocalSpawner) String() string {
	return strings.TrimSpace(strings.Join(append([]string{s.Path}, s.Args...), " "))
}

// Spawn starts the shell with its output on plain OS pipes. The read ends
// belong to the process value rather than to exec.Cmd, so Wait can run
// while the executor is still reading and never truncates the output.
func (s LocalSpawner) Spawn(ctx context.Context) (Process, error) {
	if strings.TrimSpace(s.Path) == "" {
		return nil, fmt.Errorf("%w: empty shell path", ErrNoSpawn)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(s.Path, s.Args...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeAll(stdoutR, stdoutW)
		return nil, err
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// the child holds its own copies of the write ends
	closeAll(stdoutW, stderrW)
	if err != nil {
		_ = stdin.Close()
		closeAll(stdoutR, stderrR)
		return nil, err
	}

	return &localProcess{cmd: cmd, stdin: stdin, stdout: stdoutR, stderr: stderrR}, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

type localProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File
	closed sync.Once
}

func (p *localProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *localProcess) Stdout() io.Reader     { return p.stdout }
func (p *localProcess) Stderr() io.Reader     { return p.stderr }

func (p *localProcess) Close() error {
	p.closed.Do(func() {
		closeAll(p.stdout, p.stderr)
	})
	return nil
}

func (p *localProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
