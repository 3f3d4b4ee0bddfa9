package supervisor

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DevLoop ties a file watcher to the supervisor. Each debounced burst
// rebuilds first and only then restarts: a broken rebuild is logged and the
// previous server instance keeps running.
type DevLoop struct {
	sup     *Supervisor
	watcher *Watcher
	builder Builder
	logger  *logrus.Logger
}

// NewDevLoop composes the watch-rebuild-restart loop.
func NewDevLoop(sup *Supervisor, watcher *Watcher, builder Builder, logger *logrus.Logger) *DevLoop {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &DevLoop{sup: sup, watcher: watcher, builder: builder, logger: logger}
}

// Run blocks until the context is cancelled.
func (l *DevLoop) Run(ctx context.Context) {
	l.watcher.Run(ctx, l.onBurst)
}

func (l *DevLoop) onBurst(ctx context.Context) {
	l.logger.Info("Change detected, rebuilding")
	if l.builder != nil {
		if err := l.builder.Build(ctx); err != nil {
			// Fail forward: don't kill a working server over a broken build.
			l.logger.WithError(err).Error("Rebuild failed, keeping current server running")
			return
		}
	}
	if err := l.sup.Restart(ctx); err != nil {
		l.logger.WithError(err).Error("Failed to restart dev server")
	}
}
