// Package runner spawns the external processes kikai depends on: shell
// scripts, configure, make and the toolchain generator.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// DefaultShell runs every scripted step
const DefaultShell = "/bin/sh"

// Command is a process to run synchronously
type Command struct {
	Path string
	Args []string

	// Dir is the working directory; empty means the current one
	Dir string

	// Env is appended to the process environment, later entries win
	Env []string
}

// Shell returns a command running script with "sh -e -c"
func Shell(script, dir string, env []string) *Command {
	return &Command{
		Path: DefaultShell,
		Args: []string{"-e", "-c", script},
		Dir:  dir,
		Env:  env,
	}
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner runs a command to completion
type Runner interface {
	Run(ctx context.Context, cmd *Command) error
}

// LookPathFunc finds an executable on the search path
type LookPathFunc func(file string) (string, error)

// ExitError is returned when a process exits non-zero
type ExitError struct {
	Command string
	Code    int
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Commander interface for testing
type Commander interface {
	Run() error
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer

	execCommand func(ctx context.Context, name string, args ...string) Commander
}

// NewExecRunner creates a runner writing child output to stdout and stderr
func NewExecRunner(stdout, stderr io.Writer) *ExecRunner {
	return &ExecRunner{
		Stdout: stdout,
		Stderr: stderr,
		execCommand: func(ctx context.Context, name string, args ...string) Commander {
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// Run executes the command and waits for it
func (r *ExecRunner) Run(ctx context.Context, cmd *Command) error {
	c := r.execCommand(ctx, cmd.Path, cmd.Args...)
	if ec, ok := c.(*exec.Cmd); ok {
		ec.Dir = cmd.Dir
		ec.Env = append(os.Environ(), cmd.Env...)
		ec.Stdout = r.Stdout
		ec.Stderr = r.Stderr
	}

	err := c.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Command: cmd.Path, Code: exitErr.ExitCode(), Err: err}
		}

		return fmt.Errorf("failed to spawn %s: %w", cmd.Path, err)
	}

	return nil
}
