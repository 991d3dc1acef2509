// Package workspace confines capture artifacts to an output directory. Paths
// are cleaned and resolved through symlinks before they are compared, so
// traversal and symlinked escapes are rejected the same way.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/shotscript/pkg/capture"
)

// Guard validates output paths against a root directory and any extra
// directories explicitly allowed.
type Guard struct {
	root    string   // resolved absolute root
	allowed []string // resolved extra roots
}

// extensions lists the file extensions accepted for each capture kind.
var extensions = map[capture.Kind][]string{
	capture.KindImage:  {".png", ".jpg", ".jpeg"},
	capture.KindMarkup: {".html", ".htm"},
}

// NewGuard creates a guard rooted at dir, which must exist.
func NewGuard(dir string) (*Guard, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace directory cannot be empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate workspace directory symlinks: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat workspace directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %q is not a directory", dir)
	}

	return &Guard{root: root}, nil
}

// Root returns the resolved workspace directory.
func (g *Guard) Root() string {
	return g.root
}

// Allow adds an extra directory outside the root that outputs may be written
// to. The directory does not need to exist yet.
func (g *Guard) Allow(dir string) error {
	if dir == "" {
		return fmt.Errorf("allowed directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve allowed directory: %w", err)
	}

	resolved := resolve(abs)
	for _, existing := range g.allowed {
		if existing == resolved {
			return nil
		}
	}
	g.allowed = append(g.allowed, resolved)
	return nil
}

// ResolvePath turns path into a cleaned absolute path. Relative paths are
// taken from the root and a leading ~/ expands to the home directory.
func (g *Guard) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	path = filepath.Clean(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.root, path)
	}
	return resolve(path), nil
}

// Contains reports whether the resolved path lies inside the root or an
// allowed directory.
func (g *Guard) Contains(resolved string) bool {
	if within(resolved, g.root) {
		return true
	}
	for _, dir := range g.allowed {
		if within(resolved, dir) {
			return true
		}
	}
	return false
}

// ValidatePath resolves path and rejects it when it escapes the workspace.
func (g *Guard) ValidatePath(path string) (string, error) {
	resolved, err := g.ResolvePath(path)
	if err != nil {
		return "", err
	}
	if !g.Contains(resolved) {
		return "", fmt.Errorf("path '%s' is outside workspace boundaries", path)
	}
	return resolved, nil
}

// OutputPath validates a destination for an artifact of the given kind. The
// path must stay inside the workspace, must not name a directory, and must
// carry an extension matching the kind.
func (g *Guard) OutputPath(path string, kind capture.Kind) (string, error) {
	resolved, err := g.ValidatePath(path)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		return "", fmt.Errorf("output path '%s' is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	for _, allowed := range extensions[kind] {
		if ext == allowed {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("output path '%s' must end in one of %s for %s captures",
		path, strings.Join(extensions[kind], ", "), kind)
}

// Relative returns resolved relative to the root.
func (g *Guard) Relative(resolved string) (string, error) {
	if !within(resolved, g.root) {
		return "", fmt.Errorf("path '%s' is not within workspace", resolved)
	}
	rel, err := filepath.Rel(g.root, resolved)
	if err != nil {
		return "", fmt.Errorf("failed to make path relative: %w", err)
	}
	return rel, nil
}

func within(path, dir string) bool {
	sep := string(filepath.Separator)
	return path == dir || strings.HasPrefix(path+sep, strings.TrimSuffix(dir, sep)+sep)
}

// resolve evaluates symlinks in the longest existing prefix of path and
// re-appends the components that do not exist yet.
func resolve(path string) string {
	var missing []string
	current := path
	for {
		if real, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				real = filepath.Join(real, missing[i])
			}
			return real
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
