package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkspace(apps ...*App) *Workspace {
	ws := &Workspace{
		Root: "/repo",
		Apps: make(map[string]*App, len(apps)),
	}
	for _, app := range apps {
		ws.Apps[app.Name] = app
	}
	return ws
}

func TestGenerateAllDependencyEnvVars(t *testing.T) {
	t.Run("FrontendGetsPublicDuplicates", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Kind: AppKindBackend, Port: 3000},
			&App{Name: "auth", Kind: AppKindBackend, Port: 3002},
			&App{Name: "web", Kind: AppKindFrontend, Port: 3001, Dependencies: []string{"api", "auth"}},
		)

		env := GenerateAllDependencyEnvVars(ws, "")
		assert.Equal(t, map[string]string{
			"API_URL":              "http://localhost:3000",
			"NEXT_PUBLIC_API_URL":  "http://localhost:3000",
			"AUTH_URL":             "http://localhost:3002",
			"NEXT_PUBLIC_AUTH_URL": "http://localhost:3002",
		}, env)
	})

	t.Run("BackendGetsPlainKeyOnly", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Kind: AppKindBackend, Port: 3000, Dependencies: []string{"auth"}},
			&App{Name: "auth", Kind: AppKindBackend, Port: 3002},
		)

		env := GenerateAllDependencyEnvVars(ws, "")
		assert.Equal(t, map[string]string{
			"AUTH_URL": "http://localhost:3002",
		}, env)
	})

	t.Run("UnknownDependencySkipped", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Kind: AppKindBackend, Port: 3000, Dependencies: []string{"ghost"}},
		)

		env := GenerateAllDependencyEnvVars(ws, "")
		assert.Empty(t, env)
	})

	t.Run("NoDependenciesContributeNothing", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Kind: AppKindBackend, Port: 3000},
			&App{Name: "auth", Kind: AppKindBackend, Port: 3002},
		)

		assert.Empty(t, GenerateAllDependencyEnvVars(ws, ""))
	})

	t.Run("HyphenatedNames", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "auth-service", Kind: AppKindBackend, Port: 3002},
			&App{Name: "web", Kind: AppKindBackend, Port: 3001, Dependencies: []string{"auth-service"}},
		)

		env := GenerateAllDependencyEnvVars(ws, "")
		assert.Equal(t, "http://localhost:3002", env["AUTH_SERVICE_URL"])
	})

	t.Run("CustomPrefix", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Kind: AppKindBackend, Port: 3000},
			&App{Name: "web", Kind: AppKindBackend, Port: 3001, Dependencies: []string{"api"}},
		)

		env := GenerateAllDependencyEnvVars(ws, "http://127.0.0.1")
		assert.Equal(t, "http://127.0.0.1:3000", env["API_URL"])
	})
}

func TestDependencyEnvVarsForApp(t *testing.T) {
	ws := testWorkspace(
		&App{Name: "api", Kind: AppKindBackend, Port: 3000},
		&App{Name: "auth", Kind: AppKindBackend, Port: 3002},
		&App{Name: "web", Kind: AppKindFrontend, Port: 3001, Dependencies: []string{"api", "auth"}},
	)

	t.Run("OnlyOwnDependencies", func(t *testing.T) {
		env := DependencyEnvVarsForApp(ws, "api", "")
		assert.Empty(t, env, "api has no dependencies")
	})

	t.Run("FrontendApp", func(t *testing.T) {
		env := DependencyEnvVarsForApp(ws, "web", "")
		require.Len(t, env, 4)
		assert.Equal(t, env["API_URL"], env["NEXT_PUBLIC_API_URL"])
	})

	t.Run("UnknownApp", func(t *testing.T) {
		assert.Empty(t, DependencyEnvVarsForApp(ws, "ghost", ""))
	})
}

func TestCheckPortConflicts(t *testing.T) {
	t.Run("SingleConflict", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Port: 3000},
			&App{Name: "web", Port: 3000},
		)

		conflicts := CheckPortConflicts(ws)
		require.Len(t, conflicts, 1)
		assert.Equal(t, PortConflict{App1: "api", App2: "web", Port: 3000}, conflicts[0])
	})

	t.Run("DistinctPorts", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "api", Port: 3000},
			&App{Name: "web", Port: 3001},
			&App{Name: "auth", Port: 3002},
		)

		assert.Empty(t, CheckPortConflicts(ws))
	})

	t.Run("ThreeWayCollisionReportsEachPair", func(t *testing.T) {
		ws := testWorkspace(
			&App{Name: "a", Port: 3000},
			&App{Name: "b", Port: 3000},
			&App{Name: "c", Port: 3000},
		)

		conflicts := CheckPortConflicts(ws)
		assert.Len(t, conflicts, 3)
	})
}
