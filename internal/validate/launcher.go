package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Process is a started validator. Stdout and Stderr must be read to EOF
// before Wait is called.
type Process struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	// Wait blocks until the process exits and returns its exit code.
	// A non-zero exit is not an error.
	Wait func() (int, error)
}

// Launcher starts the validator.
type Launcher interface {
	Launch(ctx context.Context, command string, args []string) (*Process, error)
}

// ExecLauncher starts the validator as an operating-system process.
// The command is looked up in PATH unless it contains a separator.
type ExecLauncher struct {
	// Dir is the working directory; empty means the server's.
	Dir string
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

func (l ExecLauncher) Launch(ctx context.Context, command string, args []string) (*Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = l.Dir
	if l.Env != nil {
		cmd.Env = l.Env
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", command, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe for %s: %w", command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}
	return &Process{
		Stdout: stdout,
		Stderr: stderr,
		Wait: func() (int, error) {
			err := cmd.Wait()
			if err == nil {
				return 0, nil
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode(), nil
			}
			return -1, fmt.Errorf("waiting for %s: %w", command, err)
		},
	}, nil
}
