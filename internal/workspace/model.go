package workspace

import (
	"fmt"
	"sort"
)

// AppKind distinguishes deployable unit flavors.
type AppKind string

const (
	// AppKindBackend is a route-discovered or single-entry HTTP API
	AppKindBackend AppKind = "backend"
	// AppKindFrontend is a browser application (SSR + client)
	AppKindFrontend AppKind = "frontend"
)

// DefaultDeployTarget is used when neither the app nor the workspace declares one.
const DefaultDeployTarget = "dokploy"

// Default infrastructure images applied when a service is declared with the
// boolean shorthand.
const (
	DefaultPostgresVersion = "16"
	DefaultPostgresImage   = "postgres:16-alpine"
	DefaultRedisVersion    = "7"
	DefaultRedisImage      = "redis:7-alpine"
	DefaultMailImage       = "axllent/mailpit:latest"
)

// App is one fully-resolved deployable unit within a workspace.
type App struct {
	Name         string
	Kind         AppKind
	Path         string
	Port         int
	Dependencies []string
	// RoutesGlob and EntryFile are mutually exclusive: a backend is either
	// route-discovered or has a single custom entry point.
	RoutesGlob   string
	EntryFile    string
	DeployTarget string
}

// ServiceMode is the resolved form of the loose service declaration shapes.
type ServiceMode int

const (
	// ServiceDisabled means the service was not declared
	ServiceDisabled ServiceMode = iota
	// ServiceDefault means the boolean shorthand was used
	ServiceDefault
	// ServiceCustom means version and/or image were overridden
	ServiceCustom
)

// Service is a workspace-wide infrastructure service declaration resolved
// once during normalization.
type Service struct {
	Mode    ServiceMode
	Version string
	Image   string
}

// Enabled reports whether the service should be provisioned.
func (s Service) Enabled() bool {
	return s.Mode != ServiceDisabled
}

// Services groups the infrastructure services a workspace may declare.
type Services struct {
	Postgres Service
	Redis    Service
	Mail     Service
}

// Workspace is the validated in-memory model of a multi-app monorepo. It is
// created once per CLI invocation and immutable afterward.
type Workspace struct {
	Root          string
	Apps          map[string]*App
	Services      Services
	DefaultDeploy string

	names []string
}

// App returns the named app, or nil when absent.
func (w *Workspace) App(name string) *App {
	return w.Apps[name]
}

// AppNames returns app names in a stable sorted order. Conflict reports and
// env var generation iterate in this order so output is deterministic.
func (w *Workspace) AppNames() []string {
	if w.names == nil {
		names := make([]string, 0, len(w.Apps))
		for name := range w.Apps {
			names = append(names, name)
		}
		sort.Strings(names)
		w.names = names
	}
	return w.names
}

// PortConflict reports a pairwise collision between two apps' declared ports.
// Conflicts are reported, never auto-resolved.
type PortConflict struct {
	App1 string
	App2 string
	Port int
}

func (c PortConflict) String() string {
	return fmt.Sprintf("apps %q and %q both declare port %d", c.App1, c.App2, c.Port)
}

// ConfigError indicates a malformed workspace declaration. It is fatal and
// surfaced before any port or process work begins.
type ConfigError struct {
	App    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.App != "" {
		return fmt.Sprintf("invalid workspace config: app %q: %s", e.App, e.Reason)
	}
	return fmt.Sprintf("invalid workspace config: %s", e.Reason)
}
