package slurm

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/jnb666/mnistrun/log"
)

// Executor runs an external command and returns its output.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, name string, args ...string) (string, string, error)

func (f ExecutorFunc) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	return f(ctx, name, args...)
}

// CommandExecutor runs commands as a subprocess. The whole process group is killed if the context is done
// or the timeout expires before the command completes. A zero Timeout means no limit.
type CommandExecutor struct {
	Timeout time.Duration
}

func (e CommandExecutor) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	var stdout, stderr bytes.Buffer
	cmd := command(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.String(), stderr.String(), err
}

// ExitStatus returns the exit code from an *exec.ExitError, or -1 if the command did not run to completion.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func logCommand(name string, args []string) {
	log.Debugf("running %s %q", name, args)
}
