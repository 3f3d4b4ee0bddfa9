package workspace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RawService accepts the loose declaration shapes a service may use: the
// boolean shorthand (`db: true`) or an object with version/image overrides.
type RawService struct {
	declared bool
	enabled  bool
	Version  string
	Image    string
}

// UnmarshalYAML implements yaml.Unmarshaler for the bool-or-object shape.
func (s *RawService) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("service must be a boolean or an object: %w", err)
		}
		s.declared = true
		s.enabled = enabled
	case yaml.MappingNode:
		var aux struct {
			Version string `yaml:"version"`
			Image   string `yaml:"image"`
		}
		if err := value.Decode(&aux); err != nil {
			return err
		}
		s.declared = true
		s.enabled = true
		s.Version = aux.Version
		s.Image = aux.Image
	default:
		return fmt.Errorf("service must be a boolean or an object, got %s", value.Tag)
	}
	return nil
}

// RawApp is one app entry as written in gkm.yaml. Most fields are optional;
// normalization fills defaults.
type RawApp struct {
	Kind         string   `yaml:"kind"`
	Path         string   `yaml:"path"`
	Port         int      `yaml:"port"`
	Dependencies []string `yaml:"dependencies"`
	Routes       string   `yaml:"routes"`
	Entry        string   `yaml:"entry"`
	Deploy       string   `yaml:"deploy"`
}

// RawServices holds the per-service loose declarations.
type RawServices struct {
	DB    RawService `yaml:"db"`
	Redis RawService `yaml:"redis"`
	Mail  RawService `yaml:"mail"`
}

// RawDeploy carries the workspace-level deploy defaults.
type RawDeploy struct {
	Default string `yaml:"default"`
}

// RawWorkspace is the multi-app declaration block.
type RawWorkspace struct {
	Apps     map[string]RawApp `yaml:"apps"`
	Services RawServices       `yaml:"services"`
	Deploy   RawDeploy         `yaml:"deploy"`
}

// RawConfig is the top-level gkm.yaml document. Either the workspace block is
// present, or the top-level fields describe a single app which normalization
// auto-wraps into a one-app workspace.
type RawConfig struct {
	Workspace *RawWorkspace `yaml:"workspace"`

	// Single-app shorthand
	Name         string      `yaml:"name"`
	Kind         string      `yaml:"kind"`
	Port         int         `yaml:"port"`
	Dependencies []string    `yaml:"dependencies"`
	Routes       string      `yaml:"routes"`
	Entry        string      `yaml:"entry"`
	Deploy       RawDeploy   `yaml:"deploy"`
	Services     RawServices `yaml:"services"`
}

// Load reads and parses a gkm.yaml document.
func Load(path string) (*RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var raw RawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	return &raw, nil
}

// Normalize turns a raw, partially-specified declaration into a validated
// workspace model. It validates shape only; whether app paths exist on disk
// is left to downstream build steps. Normalization is deterministic: it reads
// neither the environment nor the filesystem.
func Normalize(raw *RawConfig, root string) (*Workspace, error) {
	if raw == nil {
		return nil, &ConfigError{Reason: "empty config"}
	}

	rawWS := raw.Workspace
	if rawWS == nil {
		// Single-app config: wrap as a one-app workspace.
		name := raw.Name
		if name == "" {
			name = "app"
		}
		rawWS = &RawWorkspace{
			Apps: map[string]RawApp{
				name: {
					Kind:         raw.Kind,
					Path:         ".",
					Port:         raw.Port,
					Dependencies: raw.Dependencies,
					Routes:       raw.Routes,
					Entry:        raw.Entry,
				},
			},
			Services: raw.Services,
			Deploy:   raw.Deploy,
		}
	}
	if len(rawWS.Apps) == 0 {
		return nil, &ConfigError{Reason: "workspace declares no apps"}
	}

	defaultDeploy := rawWS.Deploy.Default
	if defaultDeploy == "" {
		defaultDeploy = DefaultDeployTarget
	}

	ws := &Workspace{
		Root:          root,
		Apps:          make(map[string]*App, len(rawWS.Apps)),
		DefaultDeploy: defaultDeploy,
		Services: Services{
			Postgres: resolveService(rawWS.Services.DB, DefaultPostgresVersion, DefaultPostgresImage, "postgres"),
			Redis:    resolveService(rawWS.Services.Redis, DefaultRedisVersion, DefaultRedisImage, "redis"),
			Mail:     resolveService(rawWS.Services.Mail, "", DefaultMailImage, ""),
		},
	}

	for name, rawApp := range rawWS.Apps {
		app, err := normalizeApp(name, rawApp, defaultDeploy)
		if err != nil {
			return nil, err
		}
		ws.Apps[name] = app
	}

	return ws, nil
}

func normalizeApp(name string, raw RawApp, defaultDeploy string) (*App, error) {
	if name == "" {
		return nil, &ConfigError{Reason: "app with empty name"}
	}

	kind := AppKind(raw.Kind)
	switch kind {
	case "":
		kind = AppKindBackend
	case AppKindBackend, AppKindFrontend:
	default:
		return nil, &ConfigError{App: name, Reason: fmt.Sprintf("unknown kind %q (expected backend or frontend)", raw.Kind)}
	}

	if raw.Port <= 0 {
		return nil, &ConfigError{App: name, Reason: "port is required and must be positive"}
	}
	if raw.Routes != "" && raw.Entry != "" {
		return nil, &ConfigError{App: name, Reason: "routes and entry are mutually exclusive"}
	}

	path := raw.Path
	if path == "" {
		path = name
	}

	deps := raw.Dependencies
	if deps == nil {
		deps = []string{}
	}

	deploy := raw.Deploy
	if deploy == "" {
		deploy = defaultDeploy
	}

	return &App{
		Name:         name,
		Kind:         kind,
		Path:         path,
		Port:         raw.Port,
		Dependencies: deps,
		RoutesGlob:   raw.Routes,
		EntryFile:    raw.Entry,
		DeployTarget: deploy,
	}, nil
}

// resolveService collapses the loose service shapes into the tagged form. An
// object with only one of version/image set still derives the other from the
// service defaults.
func resolveService(raw RawService, defVersion, defImage, repo string) Service {
	if !raw.declared || !raw.enabled {
		return Service{Mode: ServiceDisabled}
	}
	if raw.Version == "" && raw.Image == "" {
		return Service{Mode: ServiceDefault, Version: defVersion, Image: defImage}
	}
	svc := Service{Mode: ServiceCustom, Version: raw.Version, Image: raw.Image}
	if svc.Version == "" {
		svc.Version = defVersion
	}
	if svc.Image == "" {
		if repo != "" && raw.Version != "" {
			svc.Image = fmt.Sprintf("%s:%s-alpine", repo, raw.Version)
		} else {
			svc.Image = defImage
		}
	}
	return svc
}
