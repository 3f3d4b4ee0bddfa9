package compose

import (
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// PortMapping is one `${ENV_VAR:-default}:containerPort` token extracted from
// a Compose file's ports section. Derived from the Compose text on every
// read, never persisted.
type PortMapping struct {
	EnvVarName      string
	DefaultHostPort int
	ContainerPort   int
}

// Matches `${POSTGRES_HOST_PORT:-5432}:5432` with optional surrounding quotes.
var portMappingPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-(\d+)\}:(\d+)`)

// ParsePortMappings statically scans a Compose file for host-port
// substitution tokens under ports: blocks. Results follow file order. A
// missing or malformed file yields an empty list; Compose is optional.
func ParsePortMappings(composePath string) []PortMapping {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return nil
	}
	return parsePortMappingsText(string(data))
}

func parsePortMappingsText(text string) []PortMapping {
	var mappings []PortMapping
	inPorts := false
	portsIndent := -1
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " "))
		if trimmed == "ports:" {
			inPorts = true
			portsIndent = indent
			continue
		}
		if inPorts {
			// The block ends at the first non-list line back at or above the
			// ports: indentation.
			if trimmed != "" && !strings.HasPrefix(trimmed, "-") && indent <= portsIndent {
				inPorts = false
			} else if strings.HasPrefix(trimmed, "-") {
				if m := portMappingPattern.FindStringSubmatch(trimmed); m != nil {
					hostPort, err1 := strconv.Atoi(m[2])
					containerPort, err2 := strconv.Atoi(m[3])
					if err1 == nil && err2 == nil {
						mappings = append(mappings, PortMapping{
							EnvVarName:      m[1],
							DefaultHostPort: hostPort,
							ContainerPort:   containerPort,
						})
					}
				}
				continue
			}
		}
	}
	return mappings
}

// RewriteURLsWithPorts adjusts URL-shaped env values whose port refers to an
// infrastructure service that Docker Compose bound to a different host port.
// A URL is rewritten only when the reconciled port differs from the URL's
// current port AND the URL's port matches either the mapping's container port
// or its declared default host port. Inter-app dependency URLs carry fixed
// application ports that appear in no mapping, so they pass through
// untouched; the two URL classes are distinguished by port membership alone.
//
// Pure: the input map is never mutated.
func RewriteURLsWithPorts(env map[string]string, ports map[string]int, mappings []PortMapping) map[string]string {
	out := make(map[string]string, len(env))
	for key, value := range env {
		out[key] = rewriteURL(value, ports, mappings)
	}
	return out
}

func rewriteURL(value string, ports map[string]int, mappings []PortMapping) string {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || u.Port() == "" {
		return value
	}
	urlPort, err := strconv.Atoi(u.Port())
	if err != nil {
		return value
	}
	for _, m := range mappings {
		actual, ok := ports[m.EnvVarName]
		if !ok || actual == urlPort {
			continue
		}
		if urlPort != m.ContainerPort && urlPort != m.DefaultHostPort {
			continue
		}
		// Swap only the host:port token so scheme, userinfo (including
		// percent-encoded passwords) and path survive verbatim.
		newHost := net.JoinHostPort(u.Hostname(), strconv.Itoa(actual))
		return strings.Replace(value, u.Host, newHost, 1)
	}
	return value
}
