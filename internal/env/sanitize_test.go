package env

import (
	"sort"
	"testing"
)

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func equalSets(a, b []string) bool {
	a, b = sortedCopy(a), sortedCopy(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildFromDropsRuntimeNoise(t *testing.T) {
	s := &Sanitizer{dotenv: map[string]string{"FOO": "bar"}}
	parent := []string{
		"npm_config_prefix=/usr",
		"VITE_APP=1",
		"NODE_ENV=production",
		"NODE=/usr/bin/node",
		"_BUN_WATCHER_CHILD=1",
		"FOO=bar",  // matches .env value → injected pass-through
		"FOO2=baz", // no .env entry → kept
		"HOME=/root",
	}
	out := s.buildFrom(parent)
	want := []string{"FOO2=baz", "HOME=/root"}
	if !equalSets(out, want) {
		t.Fatalf("buildFrom() = %v, want %v", out, want)
	}
}

func TestBuildFromCleansNodeModulesFromPath(t *testing.T) {
	s := &Sanitizer{dotenv: map[string]string{}}
	parent := []string{"PATH=/usr/bin:/proj/node_modules/.bin:/bin"}
	out := s.buildFrom(parent)
	want := []string{"PATH=/usr/bin:/bin"}
	if !equalSets(out, want) {
		t.Fatalf("buildFrom() = %v, want %v", out, want)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	s, err := Load("/nonexistent/path/.env")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.dotenv) != 0 {
		t.Fatalf("expected empty dotenv, got %v", s.dotenv)
	}
}
