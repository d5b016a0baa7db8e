// Package runner is the boundary to external programs such as
// ansible-playbook, sbatch, squeue, sacct and conda. Programs are black
// boxes: only their stdout, stderr and exit status are interpreted.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command is killed because its timeout elapsed.
var ErrTimeout = errors.New("command timed out")

// Command describes one program invocation.
type Command struct {
	Name    string
	Args    []string
	Env     []string // appended to the current process environment
	Dir     string
	Timeout time.Duration
}

// String renders the command line the way it is shown in transcripts.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the captured outcome of a command that ran to completion.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Success reports whether the program exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, cmd Command) (Result, error)

func (f Func) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}

// Exec runs commands as local processes.
type Exec struct{}

// New returns a Runner backed by os/exec.
func New() *Exec {
	return &Exec{}
}

// Run starts the program and waits for it. A non-zero exit status is not an
// error: it is reported through Result.ExitCode. Errors are returned only when
// the program could not be started or the timeout elapsed.
func (e *Exec) Run(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		log.Printf("[Runner] %s timed out after %v", c.Name, c.Timeout)
		result.ExitCode = -1
		return result, fmt.Errorf("%w after %v: %s", ErrTimeout, c.Timeout, c.Name)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Printf("[Runner] %s exited with code %d in %v", c.Name, result.ExitCode, time.Since(start))
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("run %s: %w", c.Name, err)
	}

	log.Printf("[Runner] %s completed in %v", c.Name, time.Since(start))
	return result, nil
}

// Transcript formats a finished command for display: the command line,
// stdout, stderr when present, and the return code.
func Transcript(c Command, r Result) string {
	var b strings.Builder
	b.WriteString("Command: " + c.String() + "\n\n")
	b.WriteString("STDOUT:\n" + r.Stdout + "\n\n")
	if r.Stderr != "" {
		b.WriteString("STDERR:\n" + r.Stderr + "\n\n")
	}
	fmt.Fprintf(&b, "Return code: %d\n", r.ExitCode)
	return b.String()
}
