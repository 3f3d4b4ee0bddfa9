package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteDatabaseURLForTests(t *testing.T) {
	t.Run("AppendsSuffix", func(t *testing.T) {
		env := map[string]string{"DATABASE_URL": "postgresql://u:p@h:5432/db"}
		out := RewriteDatabaseURLForTests(env)
		assert.Equal(t, "postgresql://u:p@h:5432/db_test", out["DATABASE_URL"])
	})

	t.Run("AppPrefixedVariant", func(t *testing.T) {
		env := map[string]string{"API_DATABASE_URL": "postgresql://localhost:5432/api"}
		out := RewriteDatabaseURLForTests(env)
		assert.Equal(t, "postgresql://localhost:5432/api_test", out["API_DATABASE_URL"])
	})

	t.Run("Idempotent", func(t *testing.T) {
		env := map[string]string{"DATABASE_URL": "postgresql://u:p@h:5432/db"}
		once := RewriteDatabaseURLForTests(env)
		twice := RewriteDatabaseURLForTests(once)
		assert.Equal(t, once, twice)
	})

	t.Run("PreservesEncodedPasswordAndQuery", func(t *testing.T) {
		env := map[string]string{"DATABASE_URL": "postgresql://u:p%40ss@h:5432/db?sslmode=require"}
		out := RewriteDatabaseURLForTests(env)
		assert.Equal(t, "postgresql://u:p%40ss@h:5432/db_test?sslmode=require", out["DATABASE_URL"])
	})

	t.Run("NonURLValueUnchanged", func(t *testing.T) {
		env := map[string]string{"DATABASE_URL": "not a url at all"}
		out := RewriteDatabaseURLForTests(env)
		assert.Equal(t, "not a url at all", out["DATABASE_URL"])
	})

	t.Run("EmptyPathUnchanged", func(t *testing.T) {
		for _, value := range []string{"postgresql://h:5432", "postgresql://h:5432/"} {
			env := map[string]string{"DATABASE_URL": value}
			out := RewriteDatabaseURLForTests(env)
			assert.Equal(t, value, out["DATABASE_URL"])
		}
	})

	t.Run("UnrelatedKeysUntouched", func(t *testing.T) {
		env := map[string]string{
			"REDIS_URL": "redis://localhost:6379/0",
			"API_KEY":   "sk-123",
		}
		out := RewriteDatabaseURLForTests(env)
		assert.Equal(t, env, out)
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		env := map[string]string{"DATABASE_URL": "postgresql://h:5432/db"}
		_ = RewriteDatabaseURLForTests(env)
		assert.Equal(t, "postgresql://h:5432/db", env["DATABASE_URL"])
	})

	t.Run("HostPrefixSharedWithDatabaseName", func(t *testing.T) {
		// Host starts with the same characters as the database name; the
		// rewrite must target the path, not the host.
		env := map[string]string{"DATABASE_URL": "postgresql://dbhost:5432/db"}
		out := RewriteDatabaseURLForTests(env)
		assert.Equal(t, "postgresql://dbhost:5432/db_test", out["DATABASE_URL"])
	})
}

func TestBuild(t *testing.T) {
	t.Run("PrecedenceOrder", func(t *testing.T) {
		env := Build(Sources{
			BagDefaults:    map[string]string{"A": "bag", "B": "bag", "C": "bag", "D": "bag"},
			DependencyURLs: map[string]string{"B": "dep", "C": "dep", "D": "dep"},
			AppSecrets:     map[string]string{"C": "scoped", "D": "scoped"},
			Flags:          map[string]string{"D": "flag"},
		})
		assert.Equal(t, "bag", env["A"])
		assert.Equal(t, "dep", env["B"])
		assert.Equal(t, "scoped", env["C"])
		assert.Equal(t, "flag", env["D"])
	})

	t.Run("PortAndNodeEnvAppended", func(t *testing.T) {
		env := Build(Sources{Port: 3000, NodeEnv: "development"})
		assert.Equal(t, "3000", env["PORT"])
		assert.Equal(t, "development", env["NODE_ENV"])
	})

	t.Run("FlagBeatsComputedPort", func(t *testing.T) {
		env := Build(Sources{Port: 3000, Flags: map[string]string{"PORT": "4000"}})
		assert.Equal(t, "4000", env["PORT"])
	})

	t.Run("ToListSortedPairs", func(t *testing.T) {
		list := ToList(map[string]string{"B": "2", "A": "1"})
		assert.Equal(t, []string{"A=1", "B=2"}, list)
	})
}
