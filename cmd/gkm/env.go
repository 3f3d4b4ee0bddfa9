package main

import (
	"github.com/sirupsen/logrus"

	"github.com/geekmidas/gkm/internal/compose"
	"github.com/geekmidas/gkm/internal/environment"
	"github.com/geekmidas/gkm/internal/secrets"
	"github.com/geekmidas/gkm/internal/workspace"
)

// buildAppEnv assembles the environment an app's process receives: stage
// secrets (raw bag then app-scoped mapping), inter-app dependency URLs and
// port-reconciled infrastructure URLs, merged under the documented
// precedence.
func buildAppEnv(
	log *logrus.Logger,
	root, stage string,
	ws *workspace.Workspace,
	app *workspace.App,
	ports map[string]int,
	mappings []compose.PortMapping,
	nodeEnv string,
	flags map[string]string,
) (map[string]string, error) {
	store := secrets.NewStore(root, log)
	resolver := secrets.NewResolver(store, log)

	bagDefaults, err := resolver.LoadSecretsForApp(stage, "")
	if err != nil {
		return nil, err
	}
	appScoped, err := resolver.LoadSecretsForApp(stage, app.Name)
	if err != nil {
		return nil, err
	}

	env := environment.Build(environment.Sources{
		BagDefaults:    bagDefaults,
		DependencyURLs: workspace.DependencyEnvVarsForApp(ws, app.Name, ""),
		AppSecrets:     scopedOverrides(bagDefaults, appScoped),
		Flags:          flags,
		Port:           app.Port,
		NodeEnv:        nodeEnv,
	})

	// Infrastructure URLs get the ports Compose actually bound; dependency
	// URLs are untouched because their ports appear in no mapping.
	return compose.RewriteURLsWithPorts(env, ports, mappings), nil
}

// scopedOverrides reduces the app-scoped resolution to the keys it actually
// added or changed relative to the raw bag, so raw bag entries cannot
// shadow dependency URLs through the app-scoped layer.
func scopedOverrides(bag, scoped map[string]string) map[string]string {
	out := make(map[string]string)
	for key, value := range scoped {
		if prev, ok := bag[key]; !ok || prev != value {
			out[key] = value
		}
	}
	return out
}
