package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geekmidas/gkm/internal/workspace"
)

var (
	// Version is set during build
	Version = "dev"
	// BuildTime is set during build
	BuildTime = "unknown"
)

const configFileName = "gkm.yaml"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	rootCmd := &cobra.Command{
		Use:   "gkm",
		Short: "gkm workspace orchestrator",
		Long: `gkm manages multi-app workspaces: it resolves ports and
inter-app dependency URLs, reconciles Docker Compose port bindings,
maps encrypted stage secrets onto per-app credentials and supervises
the local dev server.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("root", "", "Workspace root (defaults to the current directory, GKM_ROOT)")
	rootCmd.PersistentFlags().String("stage", "development", "Stage whose secrets to use (GKM_STAGE)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	viper.SetEnvPrefix("GKM")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("stage", rootCmd.PersistentFlags().Lookup("stage"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(newDevCommand(log))
	rootCmd.AddCommand(newTestCommand(log))
	rootCmd.AddCommand(newExecCommand(log))
	rootCmd.AddCommand(newSecretsCommand(log))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gkm %s (built at %s)\n", Version, BuildTime)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// workspaceRoot resolves the root directory: flag/env override, else cwd.
func workspaceRoot() (string, error) {
	if root := viper.GetString("root"); root != "" {
		return filepath.Abs(root)
	}
	return os.Getwd()
}

func configureLogger(log *logrus.Logger) {
	if viper.GetBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}
}

// loadWorkspace reads gkm.yaml under root and normalizes it.
func loadWorkspace(root string) (*workspace.Workspace, error) {
	raw, err := workspace.Load(filepath.Join(root, configFileName))
	if err != nil {
		return nil, err
	}
	return workspace.Normalize(raw, root)
}

// selectApp picks the target app: the explicit flag wins; otherwise a
// single-app workspace selects its only app, and a multi-app workspace
// requires the flag.
func selectApp(ws *workspace.Workspace, flag string) (*workspace.App, error) {
	if flag != "" {
		app := ws.App(flag)
		if app == nil {
			return nil, fmt.Errorf("unknown app %q (have: %v)", flag, ws.AppNames())
		}
		return app, nil
	}
	names := ws.AppNames()
	if len(names) == 1 {
		return ws.App(names[0]), nil
	}
	return nil, fmt.Errorf("workspace has %d apps, pick one with --app (have: %v)", len(names), names)
}

// composeFilePath returns the workspace compose file, preferring the
// generated docker-compose.yml name.
func composeFilePath(root string) string {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yaml", "compose.yml"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(root, "docker-compose.yml")
}
