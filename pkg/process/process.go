package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/signals"
)

// Default timings for termination.
const (
	DefaultTerminateTimeout = 10 * time.Second
	DefaultWaitDelay        = 5 * time.Second
)

var (
	// ErrEmptyCommand is returned when a Command has no program name.
	ErrEmptyCommand = errors.New("empty command")

	// ErrTimeout is returned by Run when the context deadline expires before
	// the process exits.
	ErrTimeout = errors.New("process timed out")
)

// Command describes a child process to start.
type Command struct {
	// Name is the program to run. Resolved through PATH when it has no separator.
	Name string

	// Args are passed after Name.
	Args []string

	// Dir is the working directory (default: the parent's).
	Dir string

	// Env replaces the child's environment when non-nil.
	Env []string

	// Stdin is connected to the child's standard input when set.
	Stdin io.Reader

	// Stdout and Stderr receive the child's output when PipeOutput is false.
	Stdout io.Writer
	Stderr io.Writer

	// PipeOutput exposes the child's output through Process.Stdout and
	// Process.Stderr. Callers must drain both readers.
	PipeOutput bool
}

func (c Command) String() string {
	return fmt.Sprint(append([]string{c.Name}, c.Args...))
}

// Runner starts processes and ties their lifetime to a signals.Router.
type Runner struct {
	router           *signals.Router
	logger           *logging.Logger
	terminateTimeout time.Duration
	waitDelay        time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithRouter sets the router that signal watchers register with.
func WithRouter(r *signals.Router) Option {
	return func(rn *Runner) {
		rn.router = r
	}
}

// WithLogger sets the logger used for process lifecycle messages.
func WithLogger(l *logging.Logger) Option {
	return func(rn *Runner) {
		rn.logger = l
	}
}

// WithTerminateTimeout bounds how long a signal watcher waits for a graceful
// exit before killing the process.
func WithTerminateTimeout(d time.Duration) Option {
	return func(rn *Runner) {
		rn.terminateTimeout = d
	}
}

// NewRunner creates a Runner bound to signals.Default unless WithRouter is given.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		router:           signals.Default(),
		terminateTimeout: DefaultTerminateTimeout,
		waitDelay:        DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	return r
}

// Process is a running or exited child process.
type Process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error

	stdout, stderr *io.PipeReader
	writers        []*io.PipeWriter
	handlerID      signals.HandlerID
}

// Pid returns the operating system process ID.
func (p *Process) Pid() int {
	return p.pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status, or -1 while running or when the process
// was ended by a signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Err returns the error reported by the wait call, if any. A non-zero exit is
// reported as *exec.ExitError.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.ExitCode(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Stdout returns the child's standard output when Command.PipeOutput was set.
func (p *Process) Stdout() io.Reader {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Stderr returns the child's standard error when Command.PipeOutput was set.
func (p *Process) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

// closeOutput unblocks readers of the piped streams with err.
func (p *Process) closeOutput(err error) {
	if p.stdout != nil {
		_ = p.stdout.CloseWithError(err)
	}
	if p.stderr != nil {
		_ = p.stderr.CloseWithError(err)
	}
}

// Spawn starts c in a new process group and attaches the exit and signal
// watchers. The router stays subscribed to OS signals while the process runs.
func (r *Runner) Spawn(ctx context.Context, c Command) (*Process, error) {
	if c.Name == "" {
		return nil, ErrEmptyCommand
	}
	return r.start(ctx, exec.Command(c.Name, c.Args...), c)
}

// SpawnShell runs script through the platform shell (sh -c, or cmd /c on
// Windows). Name and Args of c are ignored.
func (r *Runner) SpawnShell(ctx context.Context, script string, c Command) (*Process, error) {
	if script == "" {
		return nil, ErrEmptyCommand
	}
	return r.start(ctx, shellCommand(script), c)
}

func (r *Runner) start(ctx context.Context, cmd *exec.Cmd, c Command) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = r.waitDelay
	setProcessGroup(cmd)

	p := &Process{
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	if c.PipeOutput {
		outR, outW := io.Pipe()
		errR, errW := io.Pipe()
		cmd.Stdout, cmd.Stderr = outW, errW
		p.stdout, p.stderr = outR, errR
		p.writers = []*io.PipeWriter{outW, errW}
	} else {
		cmd.Stdout, cmd.Stderr = c.Stdout, c.Stderr
	}

	shouldExit := make(chan struct{})
	var exitOnce sync.Once
	p.handlerID = r.router.Attach(func(os.Signal) {
		exitOnce.Do(func() { close(shouldExit) })
	})

	if err := cmd.Start(); err != nil {
		r.router.Remove(p.handlerID)
		for _, w := range p.writers {
			_ = w.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	p.pid = cmd.Process.Pid
	r.logger.Debugf("Started process %d: %v", p.pid, cmd.Args)

	go r.watchExit(p)
	go r.watchSignal(p, shouldExit)

	return p, nil
}

// watchExit reaps the process, closes its output and deregisters its handler.
func (r *Runner) watchExit(p *Process) {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.waitErr = err
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	code := p.exitCode
	p.mu.Unlock()

	for _, w := range p.writers {
		_ = w.Close()
	}
	close(p.done)
	r.router.Remove(p.handlerID)

	r.logger.Debugf("Process %d exited with code %d", p.pid, code)
}

// watchSignal terminates the process if the router fires before it exits.
func (r *Runner) watchSignal(p *Process, shouldExit <-chan struct{}) {
	select {
	case <-shouldExit:
		r.logger.Infof("Shutdown signal received, terminating process %d", p.pid)
		ctx, cancel := context.WithTimeout(context.Background(), r.terminateTimeout)
		defer cancel()
		if err := r.Terminate(ctx, p); err != nil {
			r.logger.Warnf("Failed to terminate process %d gracefully: %v", p.pid, err)
		}
	case <-p.done:
	}
}

// Terminate asks p to exit and waits for it. It is a no-op when p has
// already exited. If ctx expires first the process group is killed and the
// returned error wraps ctx.Err().
func (r *Runner) Terminate(ctx context.Context, p *Process) error {
	if p == nil || p.Exited() {
		return nil
	}

	release, err := r.interrupt(p)
	defer release()
	if err != nil && !p.Exited() {
		r.logger.Warnf("Failed to signal process %d: %v", p.pid, err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	}

	r.logger.Warnf("Process %d did not exit in time, killing", p.pid)
	if err := killProcess(p); err != nil && !p.Exited() {
		return fmt.Errorf("failed to kill process %d: %w", p.pid, err)
	}
	<-p.done
	return fmt.Errorf("process %d killed: %w", p.pid, ctx.Err())
}
