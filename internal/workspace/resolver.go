package workspace

import (
	"fmt"
	"strings"
)

// DefaultURLPrefix is the scheme and host dependency URLs point at during
// local development.
const DefaultURLPrefix = "http://localhost"

// EnvVarName converts an app name into its environment variable form:
// "auth-service" becomes "AUTH_SERVICE".
func EnvVarName(app string) string {
	upper := strings.ToUpper(app)
	replacer := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return replacer.Replace(upper)
}

// GenerateAllDependencyEnvVars derives, for every app and every app it
// depends on, the URL env var the dependent needs at runtime. Frontend apps
// additionally get a NEXT_PUBLIC_ duplicate so the URL is visible both during
// SSR and in the browser. Dependency names that do not resolve to an app in
// the workspace are skipped; validating the graph is the caller's concern.
//
// Keys are merged into one flat map. Collisions only happen when two apps
// depend on the same third app, which produces the same value, so overwrite
// is safe.
func GenerateAllDependencyEnvVars(ws *Workspace, urlPrefix string) map[string]string {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	env := make(map[string]string)
	for _, name := range ws.AppNames() {
		app := ws.Apps[name]
		for _, dep := range app.Dependencies {
			target := ws.Apps[dep]
			if target == nil {
				continue
			}
			key := EnvVarName(dep) + "_URL"
			value := fmt.Sprintf("%s:%d", urlPrefix, target.Port)
			env[key] = value
			if app.Kind == AppKindFrontend {
				env["NEXT_PUBLIC_"+key] = value
			}
		}
	}
	return env
}

// DependencyEnvVarsForApp derives the URL env vars for a single app only.
func DependencyEnvVarsForApp(ws *Workspace, appName, urlPrefix string) map[string]string {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	env := make(map[string]string)
	app := ws.Apps[appName]
	if app == nil {
		return env
	}
	for _, dep := range app.Dependencies {
		target := ws.Apps[dep]
		if target == nil {
			continue
		}
		key := EnvVarName(dep) + "_URL"
		value := fmt.Sprintf("%s:%d", urlPrefix, target.Port)
		env[key] = value
		if app.Kind == AppKindFrontend {
			env["NEXT_PUBLIC_"+key] = value
		}
	}
	return env
}

// CheckPortConflicts pairwise-compares every app's declared port against
// every other app's. One conflict is reported per colliding unordered pair,
// in stable app-name order. n is always small, so O(n²) is fine.
func CheckPortConflicts(ws *Workspace) []PortConflict {
	names := ws.AppNames()
	var conflicts []PortConflict
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := ws.Apps[names[i]], ws.Apps[names[j]]
			if a.Port == b.Port {
				conflicts = append(conflicts, PortConflict{App1: a.Name, App2: b.Name, Port: a.Port})
			}
		}
	}
	return conflicts
}
