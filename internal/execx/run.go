package execx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result carries a subprocess exit code alongside the raw error. Code 124
// means the context deadline fired, mirroring coreutils timeout.
type Result struct {
	Code int
	Err  error
}

func debugEnabled() bool {
	return os.Getenv("GKM_DEBUG") == "1"
}

func trace(name string, args []string) {
	if debugEnabled() {
		fmt.Fprintf(os.Stderr, "+ %s\n", strings.Join(append([]string{name}, args...), " "))
	}
}

func resultFrom(ctx context.Context, err error) Result {
	if err == nil {
		return Result{}
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return Result{Code: ee.ExitCode(), Err: err}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Code: 124, Err: err}
	}
	return Result{Code: 1, Err: err}
}

// RunCtx runs a command with inherited stdio.
func RunCtx(ctx context.Context, name string, args ...string) Result {
	trace(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return resultFrom(ctx, cmd.Run())
}

// RunEnv runs a command in dir with extra KEY=VALUE pairs appended to the
// inherited environment, stdio passed through. This is how test runners and
// exec'd tools receive the resolved workspace environment while their exit
// code propagates to the CLI.
func RunEnv(ctx context.Context, dir string, extraEnv []string, name string, args ...string) Result {
	trace(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return resultFrom(ctx, cmd.Run())
}

// Capture runs a command and returns its stdout.
func Capture(ctx context.Context, name string, args ...string) (string, Result) {
	trace(name, args)
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), resultFrom(ctx, err)
}

// WithTimeout is a shorthand for a deadline-bound background context.
func WithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
