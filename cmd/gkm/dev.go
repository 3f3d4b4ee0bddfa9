package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geekmidas/gkm/internal/compose"
	"github.com/geekmidas/gkm/internal/execx"
	"github.com/geekmidas/gkm/internal/netutil"
	"github.com/geekmidas/gkm/internal/supervisor"
	"github.com/geekmidas/gkm/internal/workspace"
)

func newDevCommand(log *logrus.Logger) *cobra.Command {
	var (
		appFlag   string
		portFlag  int
		runFlag   string
		buildFlag string
		noInfra   bool
		downFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the dev server with live reload",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogger(log)
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			ws, err := loadWorkspace(root)
			if err != nil {
				return err
			}
			app, err := selectApp(ws, appFlag)
			if err != nil {
				return err
			}
			return runDev(log, root, ws, app, devOptions{
				port:    portFlag,
				run:     runFlag,
				build:   buildFlag,
				noInfra: noInfra,
				down:    downFlag,
				stage:   viper.GetString("stage"),
			})
		},
	}

	cmd.Flags().StringVar(&appFlag, "app", "", "App to run (required for multi-app workspaces)")
	cmd.Flags().IntVar(&portFlag, "port", 0, "Port override (defaults to the app's declared port)")
	cmd.Flags().StringVar(&runFlag, "run", "node .gkm/server.mjs", "Command that starts the server")
	cmd.Flags().StringVar(&buildFlag, "build", "", "Command run before each (re)start to regenerate the entry")
	cmd.Flags().BoolVar(&noInfra, "no-infra", false, "Skip docker compose for infrastructure services")
	cmd.Flags().BoolVar(&downFlag, "down", false, "Stop infrastructure services on exit instead of leaving them running")
	return cmd
}

type devOptions struct {
	port    int
	run     string
	build   string
	noInfra bool
	down    bool
	stage   string
}

func runDev(log *logrus.Logger, root string, ws *workspace.Workspace, app *workspace.App, opts devOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conflicts are reported, never auto-resolved.
	for _, conflict := range workspace.CheckPortConflicts(ws) {
		log.Warnf("Port conflict: %s", conflict)
	}

	composePath := composeFilePath(root)
	mappings := compose.ParsePortMappings(composePath)

	// Reserve a free host port per infrastructure service, preferring the
	// defaults declared in the compose file, then record what we chose so
	// later test/exec runs target the same bindings.
	ports := make(map[string]int, len(mappings))
	for _, m := range mappings {
		port, err := netutil.ResolvePort(m.DefaultHostPort, log)
		if err != nil {
			return err
		}
		ports[m.EnvVarName] = port
	}
	runner := compose.NewRunner(log)
	infraUp := false
	if len(mappings) > 0 && !opts.noInfra {
		if err := runner.Up(ctx, composePath, ports); err != nil {
			return err
		}
		infraUp = true
	}
	if err := recordPortState(root, ports, infraUp); err != nil {
		return err
	}

	env, err := buildAppEnv(log, root, opts.stage, ws, app, ports, mappings, "development", nil)
	if err != nil {
		return err
	}

	preferredPort := app.Port
	if opts.port > 0 {
		preferredPort = opts.port
	}

	appDir := filepath.Join(root, app.Path)
	builder := commandBuilder(log, appDir, opts.build)
	runArgv := strings.Fields(opts.run)
	if len(runArgv) == 0 {
		return &workspace.ConfigError{App: app.Name, Reason: "empty run command"}
	}

	sup := supervisor.New(supervisor.Config{
		Command:       runArgv[0],
		Args:          runArgv[1:],
		Dir:           appDir,
		Env:           env,
		PreferredPort: preferredPort,
		Builder:       builder,
		Logger:        log,
	})

	if err := sup.Start(ctx); err != nil {
		return err
	}

	watcher, err := supervisor.NewWatcher(appDir, supervisor.DefaultDebounce, log)
	if err != nil {
		return err
	}
	defer watcher.Close()

	log.WithFields(logrus.Fields{
		"app":  app.Name,
		"port": sup.BoundPort(),
	}).Info("Watching for changes, Ctrl+C to stop")

	supervisor.NewDevLoop(sup, watcher, builder, log).Run(ctx)

	// Orderly shutdown: the watcher stops with the context, then the server.
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sup.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Failed to stop dev server")
	}
	if opts.down && !opts.noInfra {
		runner.Down(shutdownCtx, composePath)
	}
	return nil
}

// recordPortState persists the reconciled ports only once infrastructure is
// actually up. Probed-but-unbound ports must not steer later test/exec runs
// toward ports nothing listens on.
func recordPortState(root string, ports map[string]int, infraUp bool) error {
	if !infraUp {
		return nil
	}
	return compose.SavePortState(root, ports)
}

// commandBuilder adapts a shell-style build command into the supervisor's
// Builder collaborator. Empty means no build step.
func commandBuilder(log *logrus.Logger, dir, command string) supervisor.Builder {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil
	}
	return supervisor.BuilderFunc(func(ctx context.Context) error {
		log.WithField("command", command).Debug("Rebuilding server entry")
		res := execx.RunEnv(ctx, dir, nil, argv[0], argv[1:]...)
		if res.Err != nil {
			return res.Err
		}
		return nil
	})
}
