// Package env builds a clean environment for every child process (shells,
// tunnels, git) by stripping runtime-injected variables that would otherwise
// leak from the server's own process into spawned children.
package env

import (
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
)

// runtimePrefixes are variable-name prefixes that always indicate injection
// by a JS/Bun/Node runtime wrapper around this process.
var runtimePrefixes = []string{"npm_", "VITE_"}

// runtimeNames are exact variable names that indicate runtime injection.
var runtimeNames = map[string]bool{
	"NODE_ENV":           true,
	"NODE":               true,
	"_BUN_WATCHER_CHILD": true,
}

// Sanitizer parses a .env file once and uses it as evidence of auto-injected
// values: a parent-environment variable whose value still matches the .env
// value is assumed to be passed through rather than genuinely set.
type Sanitizer struct {
	dotenv map[string]string
}

// Load parses the .env file at path (if present) and returns a Sanitizer.
// A missing file is not an error — dotenv-based suppression is simply disabled.
func Load(path string) (*Sanitizer, error) {
	if path == "" {
		return &Sanitizer{dotenv: map[string]string{}}, nil
	}
	dotenv, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Sanitizer{dotenv: map[string]string{}}, nil
		}
		return nil, err
	}
	return &Sanitizer{dotenv: dotenv}, nil
}

// pathKey returns the platform-cased name of the PATH variable: "Path" on
// Windows, "PATH" everywhere else.
func pathKey() string {
	if runtime.GOOS == "windows" {
		return "Path"
	}
	return "PATH"
}

func pathSep() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}

// Build produces a clean environment (as "KEY=VALUE" strings, ready for
// exec.Cmd.Env) derived from the process's current environment.
func (s *Sanitizer) Build() []string {
	return s.buildFrom(os.Environ())
}

// buildFrom is the testable core of Build, operating on an explicit
// "KEY=VALUE" slice instead of the live process environment.
func (s *Sanitizer) buildFrom(parent []string) []string {
	out := make([]string, 0, len(parent))
	pk := pathKey()

	for _, kv := range parent {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if s.isInjected(key, val) {
			continue
		}
		if strings.EqualFold(key, pk) {
			val = cleanPath(val)
		}
		out = append(out, key+"="+val)
	}
	return out
}

// isInjected reports whether a key/value pair should be dropped: either it
// matches a known runtime-pollution prefix/name, or its value equals the
// value recorded in the parsed .env file (evidence of pass-through injection).
func (s *Sanitizer) isInjected(key, val string) bool {
	for _, p := range runtimePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	if runtimeNames[key] {
		return true
	}
	if dv, ok := s.dotenv[key]; ok && dv == val {
		return true
	}
	return false
}

// cleanPath removes any PATH element containing "node_modules".
func cleanPath(path string) string {
	sep := pathSep()
	parts := strings.Split(path, sep)
	kept := parts[:0]
	for _, p := range parts {
		if strings.Contains(p, "node_modules") {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, sep)
}
