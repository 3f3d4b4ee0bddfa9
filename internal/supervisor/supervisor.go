package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/geekmidas/gkm/internal/environment"
	"github.com/geekmidas/gkm/internal/netutil"
)

// State is the supervisor lifecycle state.
type State int32

const (
	// StateStopped means no child process exists
	StateStopped State = iota
	// StateStarting means a start is in progress
	StateStarting
	// StateRunning means the child is up and considered settled
	StateRunning
	// StateStopping means a graceful shutdown is in progress
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Builder regenerates the server entry before a start. The actual codegen is
// an external collaborator; the supervisor only needs "make the binary fresh".
type Builder interface {
	Build(ctx context.Context) error
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context) error

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context) error { return f(ctx) }

// ChildProcessError wraps a spawn failure or abnormal child exit.
type ChildProcessError struct {
	Command string
	Err     error
}

func (e *ChildProcessError) Error() string {
	return fmt.Sprintf("dev server process %q failed: %v", e.Command, e.Err)
}

func (e *ChildProcessError) Unwrap() error { return e.Err }

const (
	defaultSettleDelay = 500 * time.Millisecond
	defaultStopTimeout = 5 * time.Second
)

// Config describes how to run the dev server child process.
type Config struct {
	// Command and Args form the child argv; the resolved port is appended
	// as "--port N".
	Command string
	Args    []string
	Dir     string
	// Env is the resolved workspace environment injected into the child.
	Env map[string]string

	PreferredPort int
	// SettleDelay is how long Start waits before reporting readiness. There
	// is no health-check polling; this is a known limitation.
	SettleDelay time.Duration
	// StopTimeout bounds the graceful shutdown before escalating to kill.
	StopTimeout time.Duration

	Builder Builder
	Logger  *logrus.Logger
}

// Supervisor owns the lifecycle of the locally running server process.
// Start, Stop and Restart are mutually exclusive in effect: each waits for
// the prior operation to finish before touching the child process.
type Supervisor struct {
	cfg    Config
	logger *logrus.Logger
	ops    *semaphore.Weighted

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	exited    chan struct{}
	boundPort int
}

// New creates a supervisor in the Stopped state.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
		cfg.Logger.SetLevel(logrus.InfoLevel)
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger,
		ops:    semaphore.NewWeighted(1),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BoundPort returns the port the last Start resolved, 0 when never started.
func (s *Supervisor) BoundPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundPort
}

// Start brings the dev server up: stop any prior instance, resolve the
// actual port, regenerate the entry via the builder, spawn the child with
// the resolved port and injected environment, then wait a settle delay.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.ops.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.ops.Release(1)
	return s.start(ctx, true)
}

// Stop gracefully terminates the child, escalating to a kill after the stop
// timeout. No-op when nothing is running.
func (s *Supervisor) Stop(ctx context.Context) error {
	if err := s.ops.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.ops.Release(1)
	return s.stop()
}

// Restart performs Stop then Start sequentially under one lifecycle slot so
// two overlapping restarts can never race on the child process. The builder
// is skipped: restarts come from the dev loop, which has already rebuilt.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.ops.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.ops.Release(1)
	if err := s.stop(); err != nil {
		return err
	}
	return s.start(ctx, false)
}

func (s *Supervisor) start(ctx context.Context, runBuilder bool) error {
	if err := s.stop(); err != nil {
		return err
	}
	s.setState(StateStarting)

	port, err := netutil.FindAvailablePort(s.cfg.PreferredPort, netutil.DefaultMaxAttempts)
	if err != nil {
		s.setState(StateStopped)
		return err
	}
	if port != s.cfg.PreferredPort {
		s.logger.WithFields(logrus.Fields{
			"requested": s.cfg.PreferredPort,
			"resolved":  port,
		}).Warn("Preferred port is busy, using fallback")
	}

	if runBuilder && s.cfg.Builder != nil {
		if err := s.cfg.Builder.Build(ctx); err != nil {
			s.setState(StateStopped)
			return fmt.Errorf("failed to build server entry: %w", err)
		}
	}

	args := append(append([]string{}, s.cfg.Args...), "--port", strconv.Itoa(port))
	cmd := exec.Command(s.cfg.Command, args...)
	cmd.Dir = s.cfg.Dir
	env := make(map[string]string, len(s.cfg.Env)+1)
	for k, v := range s.cfg.Env {
		env[k] = v
	}
	env["PORT"] = strconv.Itoa(port)
	cmd.Env = append(os.Environ(), environment.ToList(env)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		s.setState(StateStopped)
		return &ChildProcessError{Command: s.cfg.Command, Err: err}
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.boundPort = port
	s.mu.Unlock()

	go s.monitor(cmd, exited)

	s.logger.WithFields(logrus.Fields{
		"pid":  cmd.Process.Pid,
		"port": port,
	}).Info("Dev server starting")

	select {
	case <-time.After(s.cfg.SettleDelay):
	case <-ctx.Done():
		// Cancelled mid-startup: a dead context never yields a running server.
		_ = s.stop()
		return ctx.Err()
	case <-exited:
		s.setState(StateStopped)
		return &ChildProcessError{Command: s.cfg.Command, Err: fmt.Errorf("exited during startup")}
	}

	s.setState(StateRunning)
	s.logger.WithField("port", port).Info("Dev server is ready")
	return nil
}

// monitor flips state to Stopped when the child exits on its own. The
// supervisor never auto-restarts; only file-change rebuilds do.
func (s *Supervisor) monitor(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	s.mu.Lock()
	current := s.cmd == cmd
	stopping := s.state == StateStopping
	if current {
		s.cmd = nil
		s.state = StateStopped
	}
	s.mu.Unlock()

	if current && !stopping {
		if err != nil {
			s.logger.WithError(err).Error("Dev server exited unexpectedly")
		} else {
			s.logger.Warn("Dev server exited")
		}
	}
}

func (s *Supervisor) stop() error {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	if cmd == nil {
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.logger.WithField("pid", cmd.Process.Pid).Debug("Stopping dev server")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; the monitor goroutine cleans up.
		<-exited
	} else {
		select {
		case <-exited:
		case <-time.After(s.cfg.StopTimeout):
			s.logger.Warn("Dev server did not exit in time, killing")
			_ = cmd.Process.Kill()
			<-exited
		}
	}

	s.mu.Lock()
	s.cmd = nil
	s.state = StateStopped
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
