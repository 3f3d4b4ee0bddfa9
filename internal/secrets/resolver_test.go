package secrets

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv(KeyEnvVar, "test-passphrase")
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return NewStore(t.TempDir(), logger)
}

func TestStore(t *testing.T) {
	t.Run("EncryptDecryptRoundTrip", func(t *testing.T) {
		store := testStore(t)
		bag := NewBag()
		bag.Values["API_KEY"] = "sk-123"
		bag.Services.Postgres = &PostgresCredentials{
			Username: "gkm", Password: "hunter2", Database: "app", Host: "localhost", Port: 5432,
		}
		require.NoError(t, store.Encrypt("development", bag))

		got, err := store.Decrypt("development")
		require.NoError(t, err)
		assert.Equal(t, "sk-123", got.Values["API_KEY"])
		require.NotNil(t, got.Services.Postgres)
		assert.Equal(t, "hunter2", got.Services.Postgres.Password)
	})

	t.Run("MissingBlobYieldsEmptyBag", func(t *testing.T) {
		store := testStore(t)
		bag, err := store.Decrypt("production")
		require.NoError(t, err)
		assert.Empty(t, bag.Values)
	})

	t.Run("MissingKeyYieldsEmptyBag", func(t *testing.T) {
		store := testStore(t)
		require.NoError(t, store.Encrypt("development", NewBag()))

		t.Setenv(KeyEnvVar, "")
		bag, err := store.Decrypt("development")
		require.NoError(t, err)
		assert.Empty(t, bag.Values)
	})

	t.Run("WrongKeyFails", func(t *testing.T) {
		store := testStore(t)
		require.NoError(t, store.Set("development", "API_KEY", "sk-123"))

		t.Setenv(KeyEnvVar, "other-passphrase")
		_, err := store.Decrypt("development")
		require.Error(t, err)
	})

	t.Run("SetPersists", func(t *testing.T) {
		store := testStore(t)
		require.NoError(t, store.Set("development", "A", "1"))
		require.NoError(t, store.Set("development", "B", "2"))

		bag, err := store.Decrypt("development")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"A": "1", "B": "2"}, bag.Values)
	})

	t.Run("InitGeneratesKeyFile", func(t *testing.T) {
		logger := logrus.New()
		root := t.TempDir()
		t.Setenv(KeyEnvVar, "")
		store := NewStore(root, logger)
		require.NoError(t, store.Init("development"))

		bag, err := store.Decrypt("development")
		require.NoError(t, err)
		assert.Empty(t, bag.Values)
	})
}

func TestBagFlatten(t *testing.T) {
	t.Run("ServiceCredentials", func(t *testing.T) {
		bag := NewBag()
		bag.Services.Postgres = &PostgresCredentials{
			Username: "gkm", Password: "pw", Database: "app", Host: "localhost", Port: 5432,
		}
		bag.Services.Redis = &RedisCredentials{Password: "rpw", Host: "localhost", Port: 6379}

		env := bag.Flatten()
		assert.Equal(t, "gkm", env["POSTGRES_USER"])
		assert.Equal(t, "pw", env["POSTGRES_PASSWORD"])
		assert.Equal(t, "app", env["POSTGRES_DB"])
		assert.Equal(t, "5432", env["POSTGRES_PORT"], "port coerced to string")
		assert.Equal(t, "rpw", env["REDIS_PASSWORD"])
		assert.Equal(t, "6379", env["REDIS_PORT"])
	})

	t.Run("ExplicitEntriesWin", func(t *testing.T) {
		bag := NewBag()
		bag.Values["POSTGRES_USER"] = "override"
		bag.Services.Postgres = &PostgresCredentials{Username: "derived"}

		assert.Equal(t, "override", bag.Flatten()["POSTGRES_USER"])
	})

	t.Run("AbsentServicesContributeNothing", func(t *testing.T) {
		bag := NewBag()
		bag.Values["API_KEY"] = "x"
		assert.Equal(t, map[string]string{"API_KEY": "x"}, bag.Flatten())
	})
}

func TestResolverLoadSecretsForApp(t *testing.T) {
	newResolver := func(t *testing.T, bag Bag) *Resolver {
		store := testStore(t)
		require.NoError(t, store.Encrypt("development", bag))
		return NewResolver(store, logrus.New())
	}

	t.Run("AppPrefixedURLExposedAsGeneric", func(t *testing.T) {
		bag := NewBag()
		bag.Values["AUTH_DATABASE_URL"] = "postgresql://localhost:5432/auth"
		resolver := newResolver(t, bag)

		env, err := resolver.LoadSecretsForApp("development", "auth")
		require.NoError(t, err)
		assert.Equal(t, "postgresql://localhost:5432/auth", env["AUTH_DATABASE_URL"], "prefixed key remains")
		assert.Equal(t, "postgresql://localhost:5432/auth", env["DATABASE_URL"])
	})

	t.Run("NoPrefixLeavesGenericUntouched", func(t *testing.T) {
		bag := NewBag()
		bag.Values["DATABASE_URL"] = "postgresql://localhost:5432/app"
		resolver := newResolver(t, bag)

		env, err := resolver.LoadSecretsForApp("development", "web")
		require.NoError(t, err)
		assert.Equal(t, "postgresql://localhost:5432/app", env["DATABASE_URL"])
	})

	t.Run("SingleAppModeReturnsBagAsIs", func(t *testing.T) {
		bag := NewBag()
		bag.Values["API_DATABASE_URL"] = "postgresql://localhost:5432/api"
		resolver := newResolver(t, bag)

		env, err := resolver.LoadSecretsForApp("development", "")
		require.NoError(t, err)
		_, hasGeneric := env["DATABASE_URL"]
		assert.False(t, hasGeneric, "no app mapping in single-app mode")
	})

	t.Run("HyphenatedAppName", func(t *testing.T) {
		bag := NewBag()
		bag.Values["AUTH_SERVICE_DATABASE_URL"] = "postgresql://localhost:5432/auth"
		resolver := newResolver(t, bag)

		env, err := resolver.LoadSecretsForApp("development", "auth-service")
		require.NoError(t, err)
		assert.Equal(t, "postgresql://localhost:5432/auth", env["DATABASE_URL"])
	})

	t.Run("EmptyStage", func(t *testing.T) {
		store := testStore(t)
		resolver := NewResolver(store, logrus.New())

		env, err := resolver.LoadSecretsForApp("production", "api")
		require.NoError(t, err)
		assert.Empty(t, env)
	})
}
