package compose

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geekmidas/gkm/internal/execx"
)

// Runner shells out to docker compose for the infrastructure services a
// workspace declares. Reconciled host ports are exported as the same env vars
// the compose file substitutes, so what compose binds is exactly what the
// port state records.
type Runner struct {
	logger *logrus.Logger
}

// NewRunner creates a compose runner.
func NewRunner(logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Runner{logger: logger}
}

// Up starts the compose services detached with the given host-port env vars
// exported. A missing compose file is not an error; infra is optional.
func (r *Runner) Up(ctx context.Context, composePath string, ports map[string]int) error {
	if _, err := os.Stat(composePath); err != nil {
		r.logger.Debug("No compose file, skipping infrastructure startup")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res := execx.RunEnv(ctx, "", portEnv(ports), "docker", "compose", "-f", composePath, "up", "-d", "--wait")
	if res.Err != nil {
		return fmt.Errorf("docker compose up failed: %w", res.Err)
	}
	r.logger.WithField("ports", ports).Info("Infrastructure services are up")
	return nil
}

// Down stops the compose services. Best effort; errors are logged, not
// returned, so shutdown never blocks on compose.
func (r *Runner) Down(ctx context.Context, composePath string) {
	if _, err := os.Stat(composePath); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if res := execx.RunCtx(ctx, "docker", "compose", "-f", composePath, "down"); res.Err != nil {
		r.logger.WithError(res.Err).Warn("docker compose down failed")
	}
}

func portEnv(ports map[string]int) []string {
	env := make([]string, 0, len(ports))
	for name, port := range ports {
		env = append(env, fmt.Sprintf("%s=%d", name, port))
	}
	return env
}
