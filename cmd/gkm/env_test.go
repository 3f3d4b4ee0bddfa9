package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekmidas/gkm/internal/compose"
	"github.com/geekmidas/gkm/internal/workspace"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func singleAppWorkspace(port int) (*workspace.Workspace, *workspace.App) {
	app := &workspace.App{Name: "api", Kind: workspace.AppKindBackend, Path: ".", Port: port}
	ws := &workspace.Workspace{Apps: map[string]*workspace.App{"api": app}}
	return ws, app
}

func TestBuildAppEnv(t *testing.T) {
	t.Run("PortAndNodeEnvAlwaysPresent", func(t *testing.T) {
		root := t.TempDir()
		ws, app := singleAppWorkspace(3000)

		// The test/exec path: no reconciled ports, no compose mappings.
		env, err := buildAppEnv(testLogger(), root, "development", ws, app, nil, nil, "test", nil)
		require.NoError(t, err)
		assert.Equal(t, "3000", env["PORT"], "subprocesses need the app port without a supervisor")
		assert.Equal(t, "test", env["NODE_ENV"])
	})

	t.Run("FlagStillBeatsDeclaredPort", func(t *testing.T) {
		root := t.TempDir()
		ws, app := singleAppWorkspace(3000)

		env, err := buildAppEnv(testLogger(), root, "development", ws, app, nil, nil, "test", map[string]string{"PORT": "4000"})
		require.NoError(t, err)
		assert.Equal(t, "4000", env["PORT"])
	})
}

func TestRecordPortState(t *testing.T) {
	ports := map[string]int{"POSTGRES_HOST_PORT": 5433}

	t.Run("SkippedWhenInfraNeverCameUp", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, recordPortState(root, ports, false))

		_, err := os.Stat(filepath.Join(root, ".gkm", "ports.json"))
		assert.True(t, os.IsNotExist(err), "unbound ports must not be recorded")

		loaded, err := compose.LoadPortState(root)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("PersistedAfterInfraUp", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, recordPortState(root, ports, true))

		loaded, err := compose.LoadPortState(root)
		require.NoError(t, err)
		assert.Equal(t, ports, loaded)
	})
}
