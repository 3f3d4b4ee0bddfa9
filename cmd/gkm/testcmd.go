package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geekmidas/gkm/internal/compose"
	"github.com/geekmidas/gkm/internal/environment"
	"github.com/geekmidas/gkm/internal/execx"
)

func newTestCommand(log *logrus.Logger) *cobra.Command {
	var appFlag string

	cmd := &cobra.Command{
		Use:   "test [-- runner args]",
		Short: "Run the app's test suite with the resolved workspace environment",
		Long: `Loads stage secrets, inter-app dependency URLs and the port state
recorded by the last dev run, rewrites database URLs onto isolated
_test databases, then delegates to the test runner. The runner's exit
code is propagated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogger(log)
			if len(args) == 0 {
				args = []string{"npm", "test"}
			}
			return runWithEnv(log, appFlag, "test", args)
		},
	}
	cmd.Flags().StringVar(&appFlag, "app", "", "App whose environment to load")
	return cmd
}

func newExecCommand(log *logrus.Logger) *cobra.Command {
	var appFlag string

	cmd := &cobra.Command{
		Use:   "exec -- <command args>",
		Short: "Run a command with the resolved workspace environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogger(log)
			return runWithEnv(log, appFlag, "development", args)
		},
	}
	cmd.Flags().StringVar(&appFlag, "app", "", "App whose environment to load")
	return cmd
}

// runWithEnv is the shared test/exec path: assemble the app environment,
// apply the test database rewrite when running tests, then delegate to the
// subprocess and propagate its exit code.
func runWithEnv(log *logrus.Logger, appFlag, nodeEnv string, argv []string) error {
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

	composePath := composeFilePath(root)
	mappings := compose.ParsePortMappings(composePath)
	ports, err := compose.LoadPortState(root)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		log.Debug("No recorded port state; compose defaults apply")
	}

	env, err := buildAppEnv(log, root, viper.GetString("stage"), ws, app, ports, mappings, nodeEnv, nil)
	if err != nil {
		return err
	}
	if nodeEnv == "test" {
		env = environment.RewriteDatabaseURLForTests(env)
	}

	appDir := filepath.Join(root, app.Path)
	res := execx.RunEnv(context.Background(), appDir, environment.ToList(env), argv[0], argv[1:]...)
	if res.Code != 0 {
		os.Exit(res.Code)
	}
	return nil
}
