package shell

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/danmuck/matterctl/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultExitCommand    = "quit"
	DefaultSettleDelay    = 2000 * time.Millisecond
	DefaultStartupTimeout = 30 * time.Second
	DefaultExitGrace      = 5 * time.Second
)

// Invocation outcome labels reported to metrics.
const (
	OutcomeOK          = "ok"
	OutcomeSpawnFailed = "spawn_failed"
	OutcomeNonZeroExit = "nonzero_exit"
	OutcomeNotReady    = "not_ready"
	OutcomeCanceled    = "canceled"
	OutcomeWaitFailed  = "wait_failed"
)

// Config tunes one executor's interaction with the device shell.
type Config struct {
	ReadyMarker string
	ExitCommand string
	// SettleDelay is the wait between submitting the command and sending the
	// exit command. It must cover the slowest expected device round trip.
	SettleDelay    time.Duration
	StartupTimeout time.Duration
	ExitGrace      time.Duration
	NoiseMarkers   []string
}

func DefaultConfig() Config {
	return Config{
		ReadyMarker:    DefaultReadyMarker,
		ExitCommand:    DefaultExitCommand,
		SettleDelay:    DefaultSettleDelay,
		StartupTimeout: DefaultStartupTimeout,
		ExitGrace:      DefaultExitGrace,
		NoiseMarkers:   DefaultNoiseMarkers(DefaultReadyMarker),
	}
}

// Executor runs one device shell lifecycle per Execute call.
type Executor struct {
	spawner Spawner
	cfg     Config
	noise   []string
	clock   clock.Clock
	logger  zerolog.Logger
}

type Option func(*Executor)

// WithClock replaces the wall clock used for the settle, startup and exit timers.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func NewExecutor(spawner Spawner, cfg Config, opts ...Option) *Executor {
	if cfg.ReadyMarker == "" {
		cfg.ReadyMarker = DefaultReadyMarker
	}
	if cfg.ExitCommand == "" {
		cfg.ExitCommand = DefaultExitCommand
	}
	e := &Executor{
		spawner: spawner,
		cfg:     cfg,
		noise:   noiseWithReady(cfg.NoiseMarkers, cfg.ReadyMarker),
		clock:   clock.New(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "shell").Logger()
	return e
}

// Execute spawns a fresh shell, submits command once the ready prompt
// appears, waits the settle delay, asks the shell to exit and returns the
// filtered stdout. A non-zero exit yields *ExitError and no stdout text; a
// failed spawn yields *SpawnError.
func (e *Executor) Execute(ctx context.Context, command string) (string, error) {
	logger := e.logger.With().Str("invocation", uuid.NewString()).Logger()
	started := e.clock.Now()

	out, outcome, err := e.run(ctx, logger, command)

	elapsed := e.clock.Since(started)
	observability.RecordShellInvocation(outcome, elapsed)
	event := logger.Debug()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.Str("outcome", outcome).Dur("elapsed", elapsed).Msg("shell.Executor.Execute complete")
	return out, err
}

func (e *Executor) run(ctx context.Context, logger zerolog.Logger, command string) (string, string, error) {
	if e.spawner == nil {
		return "", OutcomeSpawnFailed, &SpawnError{Shell: "<nil>", Err: ErrNoSpawn}
	}
	if err := ctx.Err(); err != nil {
		return "", OutcomeCanceled, fmt.Errorf("shell: invocation canceled: %w", err)
	}

	logger.Debug().Str("shell", e.spawner.String()).Str("command", command).Msg("shell.Executor.Execute spawn")
	proc, err := e.spawner.Spawn(ctx)
	if err != nil {
		return "", OutcomeSpawnFailed, &SpawnError{Shell: e.spawner.String(), Err: err}
	}

	var stdout, stderr transcript
	ready := make(chan struct{})
	var streams errgroup.Group
	streams.Go(func() error {
		latched := false
		return pump(proc.Stdout(), &stdout, func() {
			if !latched && stdout.contains(e.cfg.ReadyMarker) {
				latched = true
				close(ready)
			}
		})
	})
	streams.Go(func() error {
		return pump(proc.Stderr(), &stderr, nil)
	})
	drained := make(chan error, 1)
	go func() {
		drained <- streams.Wait()
	}()
	exited := make(chan exitStatus, 1)
	go func() {
		code, err := proc.Wait()
		exited <- exitStatus{code: code, err: err}
	}()

	var (
		readyC    <-chan struct{} = ready
		ctxDone                   = ctx.Done()
		exitedC                   = exited
		drainedC                  = drained
		startupT  *clock.Timer
		settleT   *clock.Timer
		graceT    *clock.Timer
		drainT    *clock.Timer
		startupC  <-chan time.Time
		settleC   <-chan time.Time
		graceC    <-chan time.Time
		drainC    <-chan time.Time
		submitted bool
		notReady  bool
		cancelErr error
		status    exitStatus
		exitedAt  time.Duration
	)
	started := e.clock.Now()
	if e.cfg.StartupTimeout > 0 {
		startupT = e.clock.Timer(e.cfg.StartupTimeout)
		startupC = startupT.C
	}
	defer func() {
		stopTimer(startupT)
		stopTimer(settleT)
		stopTimer(graceT)
		stopTimer(drainT)
		_ = proc.Close()
	}()

	// The loop ends only once the child is reaped and both streams are
	// drained. Until the child exits, cancellation and every timer stay armed.
	stdin := proc.Stdin()
	for exitedC != nil || drainedC != nil {
		select {
		case <-readyC:
			readyC = nil
			stopTimer(startupT)
			startupC = nil
			settleT = e.clock.Timer(e.cfg.SettleDelay)
			settleC = settleT.C
			if err := writeLine(stdin, command); err != nil {
				logger.Warn().Err(err).Msg("shell.Executor.Execute submit failed")
			}
			submitted = true
			logger.Debug().Dur("settle", e.cfg.SettleDelay).Msg("shell.Executor.Execute submitted")
		case <-settleC:
			settleC = nil
			if err := writeLine(stdin, e.cfg.ExitCommand); err != nil {
				logger.Debug().Err(err).Msg("shell.Executor.Execute exit command not delivered")
			}
			_ = stdin.Close()
			graceT = e.clock.Timer(e.graceOrDefault())
			graceC = graceT.C
		case <-graceC:
			graceC = nil
			logger.Warn().Dur("grace", e.graceOrDefault()).Msg("shell.Executor.Execute shell ignored exit, killing")
			e.kill(logger, proc)
		case <-startupC:
			startupC = nil
			readyC = nil
			notReady = true
			e.kill(logger, proc)
		case <-ctxDone:
			ctxDone = nil
			readyC = nil
			settleC = nil
			cancelErr = ctx.Err()
			if exitedC == nil {
				_ = proc.Close()
			} else {
				e.kill(logger, proc)
			}
		case status = <-exitedC:
			exitedC = nil
			exitedAt = e.clock.Since(started)
			readyC = nil
			startupC = nil
			settleC = nil
			graceC = nil
			if drainedC != nil {
				// a descendant may still hold the pipes open
				drainT = e.clock.Timer(e.graceOrDefault())
				drainC = drainT.C
			}
		case err := <-drainedC:
			drainedC = nil
			drainC = nil
			if err != nil {
				logger.Debug().Err(err).Msg("shell.Executor.Execute stream read ended early")
			}
		case <-drainC:
			drainC = nil
			logger.Warn().Msg("shell.Executor.Execute streams still open after exit, closing")
			_ = proc.Close()
		}
	}
	_ = stdin.Close()

	switch {
	case cancelErr != nil:
		return "", OutcomeCanceled, fmt.Errorf("shell: invocation canceled: %w", cancelErr)
	case notReady:
		return "", OutcomeNotReady, &StartupError{After: e.cfg.StartupTimeout, Stderr: stderr.String()}
	case status.err != nil:
		return "", OutcomeWaitFailed, fmt.Errorf("shell: wait for %s: %w", e.spawner, status.err)
	case status.code != 0:
		return "", OutcomeNonZeroExit, &ExitError{Code: status.code, Stderr: stderr.String()}
	case !submitted:
		return "", OutcomeNotReady, &StartupError{After: exitedAt, Exited: true, Stderr: stderr.String()}
	}
	return FilterOutput(stdout.String(), e.noise), OutcomeOK, nil
}

type exitStatus struct {
	code int
	err  error
}

func (e *Executor) graceOrDefault() time.Duration {
	if e.cfg.ExitGrace > 0 {
		return e.cfg.ExitGrace
	}
	return DefaultExitGrace
}

func (e *Executor) kill(logger zerolog.Logger, proc Process) {
	if err := proc.Kill(); err != nil {
		logger.Warn().Err(err).Msg("shell.Executor.Execute kill failed")
	}
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, strings.TrimRight(line, "\r\n")+"\n")
	return err
}

func stopTimer(t *clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
