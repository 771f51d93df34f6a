package lifecycle

import (
	"os"
	"path/filepath"
)

// vcsMarkers are checked, in order, when walking up from the current
// directory looking for a version-control top-level.
var vcsMarkers = []string{".git", ".hg", ".svn"}

// projectMarkers identify a project root when no VCS marker is found.
var projectMarkers = []string{"go.mod", "package.json", "pyproject.toml", ".agent-brain.yaml"}

// ResolveProjectRoot finds the project root for start, in the order the
// instance-lifecycle design specifies: version-control top-level first,
// then the nearest ancestor with a recognized project marker, then the
// current directory itself.
func ResolveProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	if root, ok := walkUpFor(dir, vcsMarkers); ok {
		return root, nil
	}
	if root, ok := walkUpFor(dir, projectMarkers); ok {
		return root, nil
	}
	return dir, nil
}

// walkUpFor walks from dir to the filesystem root looking for any of
// markers as an immediate child of the current directory.
func walkUpFor(dir string, markers []string) (string, bool) {
	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
