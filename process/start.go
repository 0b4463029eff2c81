package process

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a running subprocess started by Start.
type Process struct {
	cmd   *exec.Cmd
	grace time.Duration

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	waitErr  error
}

// Start launches cmd and returns without waiting for it.
// Output is written to stdout and stderr, which may be nil.
func Start(cmd Command, stdout, stderr io.Writer) (*Process, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}
	c := cmd.build()
	c.Stdout = stdout
	c.Stderr = stderr
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}

	p := &Process{cmd: c, grace: cmd.gracePeriod(), done: make(chan struct{})}
	go func() {
		err := c.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the process has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the process exits or ctx ends.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	if p.Running() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Stop sends SIGTERM to the process group and SIGKILL once the grace period
// (or ctx) runs out. Calling Stop on an exited process is a no-op.
func (p *Process) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if !p.Running() {
			return
		}
		_ = signalGroup(p.cmd, syscall.SIGTERM)

		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return
		case <-timer.C:
		case <-ctx.Done():
		}
		if kerr := signalGroup(p.cmd, syscall.SIGKILL); kerr != nil && kerr != syscall.ESRCH {
			err = fmt.Errorf("process: kill %d: %w", p.Pid(), kerr)
			return
		}
		<-p.done
	})
	return err
}
