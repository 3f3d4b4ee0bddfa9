package secrets

import (
	"github.com/sirupsen/logrus"

	"github.com/geekmidas/gkm/internal/workspace"
)

// GenericDatabaseURLKey is the conventional variable name app code expects
// its connection string under.
const GenericDatabaseURLKey = "DATABASE_URL"

// Resolver maps a stage's flat secret bag down to the credential set one app
// should see.
type Resolver struct {
	store  *Store
	logger *logrus.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *Store, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Resolver{store: store, logger: logger}
}

// LoadSecretsForApp decrypts the stage bag and flattens service credentials.
// In workspace mode it also surfaces the app-prefixed database URL under the
// generic DATABASE_URL key. Several backends sharing one physical database
// instance each receive "their" connection string this way.
//
// appName empty means single-app mode: the flattened bag is returned as-is.
// When no secrets exist yet the result is an empty map, not an error.
func (r *Resolver) LoadSecretsForApp(stage, appName string) (map[string]string, error) {
	bag, err := r.store.Decrypt(stage)
	if err != nil {
		return nil, err
	}
	env := bag.Flatten()
	if appName == "" {
		return env, nil
	}

	prefixed := workspace.EnvVarName(appName) + "_" + GenericDatabaseURLKey
	if url, ok := env[prefixed]; ok {
		// The prefixed key stays available alongside the generic one.
		env[GenericDatabaseURLKey] = url
		r.logger.WithFields(logrus.Fields{
			"app": appName,
			"key": prefixed,
		}).Debug("Mapped app-scoped database URL")
	}
	return env, nil
}
