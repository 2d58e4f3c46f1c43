package test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// =============================================================================
// STRUCTURAL VERIFICATION TESTS
// =============================================================================
//
// These tests verify codebase consistency:
// - every package under pkg/ and cmd/ has tests
// - no forgotten action items in test files
// - version and module path consistency

// getRepoRoot returns the repository root directory (parent of test/)
func getRepoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if filepath.Base(wd) == "test" {
		return filepath.Dir(wd)
	}
	if _, err := os.Stat(filepath.Join(wd, "pkg")); err == nil {
		return wd
	}
	for dir := wd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			if _, err := os.Stat(filepath.Join(dir, "pkg")); err == nil {
				return dir
			}
		}
	}

	t.Fatalf("could not find repository root from %s", wd)
	return ""
}

// goPackageDirs returns every directory under root holding non-test Go
// files, relative to repoRoot.
func goPackageDirs(t *testing.T, repoRoot, root string) []string {
	t.Helper()
	seen := map[string]bool{}
	var dirs []string
	err := filepath.WalkDir(filepath.Join(repoRoot, root), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "testdata" {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, _ := filepath.Rel(repoRoot, filepath.Dir(path))
		if !seen[rel] {
			seen[rel] = true
			dirs = append(dirs, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return dirs
}

// TestAllPackagesHaveTests verifies each package under pkg/ and cmd/
// has *_test.go files.
func TestAllPackagesHaveTests(t *testing.T) {
	repoRoot := getRepoRoot(t)

	var dirs []string
	dirs = append(dirs, goPackageDirs(t, repoRoot, "pkg")...)
	dirs = append(dirs, goPackageDirs(t, repoRoot, "cmd")...)
	if len(dirs) == 0 {
		t.Fatal("no packages found")
	}

	var missing []string
	for _, dir := range dirs {
		tests, _ := filepath.Glob(filepath.Join(repoRoot, dir, "*_test.go"))
		if len(tests) == 0 {
			missing = append(missing, dir)
		}
	}
	t.Logf("Packages with tests: %d/%d", len(dirs)-len(missing), len(dirs))
	for _, dir := range missing {
		t.Errorf("package %s has no tests", dir)
	}
}

// TestNoTODOsInTests reports TODO/FIXME/HACK comments in test files.
// Informational only.
func TestNoTODOsInTests(t *testing.T) {
	repoRoot := getRepoRoot(t)
	todoPattern := regexp.MustCompile(`//\s*(TODO|FIXME|HACK)[:.\s]+(.*)`)

	var count int
	for _, root := range []string{"pkg", "cmd"} {
		err := filepath.WalkDir(filepath.Join(repoRoot, root), func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, "_test.go") {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for i, line := range strings.Split(string(content), "\n") {
				if m := todoPattern.FindStringSubmatch(line); m != nil {
					rel, _ := filepath.Rel(repoRoot, path)
					t.Logf("  %s:%d: %s: %s", rel, i+1, m[1], strings.TrimSpace(m[2]))
					count++
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("walk %s: %v", root, err)
		}
	}
	if count == 0 {
		t.Log("No TODO/FIXME/HACK comments found in test files")
	}
}

// TestVersion_Consistent verifies the version constant is semver and the
// user-facing surfaces read it rather than hardcoding one.
func TestVersion_Consistent(t *testing.T) {
	repoRoot := getRepoRoot(t)

	content, err := os.ReadFile(filepath.Join(repoRoot, "pkg", "defaults", "defaults.go"))
	if err != nil {
		t.Fatalf("failed to read defaults.go: %v", err)
	}
	m := regexp.MustCompile(`Version\s*=\s*"([^"]+)"`).FindSubmatch(content)
	if m == nil {
		t.Fatal("could not find Version constant in defaults.go")
	}
	version := string(m[1])
	if !regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`).MatchString(version) {
		t.Errorf("defaults.Version (%s) is not valid semver", version)
	}

	for _, rel := range []string{
		"pkg/ui/ui.go",
		"pkg/mcpserver/server.go",
		"cmd/webscan/root.go",
	} {
		src, err := os.ReadFile(filepath.Join(repoRoot, rel))
		if err != nil {
			t.Errorf("read %s: %v", rel, err)
			continue
		}
		if !strings.Contains(string(src), "defaults.Version") {
			t.Errorf("%s should reference defaults.Version", rel)
		}
		if strings.Contains(string(src), `"`+version+`"`) {
			t.Errorf("%s hardcodes version %s", rel, version)
		}
	}
}

// TestGoModConsistency verifies the module path and Go version.
func TestGoModConsistency(t *testing.T) {
	repoRoot := getRepoRoot(t)
	content, err := os.ReadFile(filepath.Join(repoRoot, "go.mod"))
	if err != nil {
		t.Fatalf("failed to read go.mod: %v", err)
	}
	goMod := string(content)

	if !strings.Contains(goMod, "module github.com/waftester/webscan\n") {
		t.Error("go.mod should declare module github.com/waftester/webscan")
	}
	if strings.Contains(goMod, "replace ") {
		t.Error("go.mod should not carry replace directives")
	}
	if m := regexp.MustCompile(`go\s+(\d+)\.(\d+)`).FindStringSubmatch(goMod); m != nil {
		t.Logf("Go version: %s.%s", m[1], m[2])
	} else {
		t.Error("could not find Go version in go.mod")
	}
}
