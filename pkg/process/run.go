package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Result is the outcome of Run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the process exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Run spawns c with piped output, streams both outputs through ReadStream
// concurrently and waits for the process to exit.
//
// If ctx expires first the process is terminated and ErrTimeout is returned
// together with the output collected so far. Cancellation returns ctx.Err().
// A non-zero exit status is not an error; check Result.ExitCode.
func (r *Runner) Run(ctx context.Context, c Command, onStdout, onStderr LineFunc) (*Result, error) {
	c.PipeOutput = true
	start := time.Now()

	p, err := r.Spawn(ctx, c)
	if err != nil {
		return nil, err
	}

	var (
		wg               sync.WaitGroup
		stdout, stderr   string
		stdoutE, stderrE error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stdout, stdoutE = ReadStream(p.Stdout(), onStdout)
	}()
	go func() {
		defer wg.Done()
		stderr, stderrE = ReadStream(p.Stderr(), onStderr)
	}()

	readersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(readersDone)
	}()

	select {
	case <-readersDone:
	case <-ctx.Done():
		termCtx, cancel := context.WithTimeout(context.Background(), r.terminateTimeout)
		if err := r.Terminate(termCtx, p); err != nil {
			r.logger.Warnf("Terminate after %v: %v", ctx.Err(), err)
		}
		cancel()
		p.closeOutput(ErrTimeout)
		<-readersDone

		res := &Result{ExitCode: p.ExitCode(), Stdout: stdout, Stderr: stderr, Duration: time.Since(start)}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s", ErrTimeout, res.Duration.Round(time.Millisecond))
		}
		return res, ctx.Err()
	}

	<-p.Done()
	for _, e := range []error{stdoutE, stderrE} {
		if e != nil {
			r.logger.Warnf("Error reading output of process %d: %v", p.Pid(), e)
		}
	}

	return &Result{
		ExitCode: p.ExitCode(),
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
	}, nil
}
