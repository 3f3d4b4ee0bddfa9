package environment

import (
	"net/url"
	"strings"
)

// TestDatabaseSuffix is appended to database names for isolated test runs.
const TestDatabaseSuffix = "_test"

// RewriteDatabaseURLForTests appends the test suffix to the database name of
// every URL-shaped value whose key contains DATABASE_URL, covering both the
// generic key and app-prefixed variants. Scheme, userinfo (including
// percent-encoded passwords), host and port survive verbatim. Values that are
// not valid URLs or have no database path pass through unchanged. Idempotent:
// a name already ending in the suffix is left alone.
//
// Pure: the input map is never mutated.
func RewriteDatabaseURLForTests(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for key, value := range env {
		if strings.Contains(key, "DATABASE_URL") {
			out[key] = rewriteDatabaseName(value)
		} else {
			out[key] = value
		}
	}
	return out
}

func rewriteDatabaseName(value string) string {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return value
	}
	// Locate the path inside the original string so the rewrite is pure
	// string surgery; round-tripping through url.URL could re-encode the
	// userinfo.
	hostIdx := strings.Index(value, u.Host)
	if hostIdx < 0 {
		return value
	}
	afterHost := hostIdx + len(u.Host)
	slash := strings.Index(value[afterHost:], "/")
	if slash < 0 {
		return value
	}
	start := afterHost + slash
	rest := value[start:]
	end := len(rest)
	if q := strings.IndexAny(rest, "?#"); q >= 0 {
		end = q
	}
	dbPath := rest[:end]
	if dbPath == "/" || strings.HasSuffix(dbPath, TestDatabaseSuffix) {
		return value
	}
	return value[:start] + dbPath + TestDatabaseSuffix + rest[end:]
}
