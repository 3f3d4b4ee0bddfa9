package environment

import (
	"fmt"
	"sort"
)

// Sources are the layered inputs that make up a spawned process's
// environment. Later layers win: raw secret bag defaults, then dependency
// URLs, then app-scoped secret mappings, then explicit CLI flags.
type Sources struct {
	BagDefaults    map[string]string
	DependencyURLs map[string]string
	AppSecrets     map[string]string
	Flags          map[string]string

	Port    int
	NodeEnv string
}

// Build merges the layers in precedence order and appends the PORT and
// NODE_ENV pair. A PORT or NODE_ENV supplied via Flags still wins over the
// computed values.
func Build(s Sources) map[string]string {
	env := make(map[string]string)
	merge(env, s.BagDefaults)
	merge(env, s.DependencyURLs)
	merge(env, s.AppSecrets)
	if s.Port > 0 {
		env["PORT"] = fmt.Sprintf("%d", s.Port)
	}
	if s.NodeEnv != "" {
		env["NODE_ENV"] = s.NodeEnv
	}
	merge(env, s.Flags)
	return env
}

func merge(dst map[string]string, src map[string]string) {
	for key, value := range src {
		dst[key] = value
	}
}

// ToList renders an env map as sorted KEY=VALUE pairs for exec.Cmd.Env.
func ToList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, key := range keys {
		list = append(list, key+"="+env[key])
	}
	return list
}
