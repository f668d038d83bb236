// Package treeview builds the shallow file-tree listing a worker's prompt
// uses for context, optionally filtered by a .swarmignore file at the
// workspace root.
package treeview

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Build returns every path in paths whose depth (slash-separated
// component count) is at most maxDepth, filtered through workspaceDir's
// .swarmignore if one exists, sorted for deterministic prompt content.
func Build(workspaceDir string, paths []string, maxDepth int) []string {
	matcher := loadIgnore(workspaceDir)

	var out []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if depth(p) > maxDepth {
			continue
		}
		if matcher != nil && matcher.MatchesPath(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Render formats paths as a newline-joined listing, or "(empty)" if there
// are none — matching the placeholder the worker prompt expects when a
// fresh branch has nothing to show yet.
func Render(paths []string) string {
	if len(paths) == 0 {
		return "(empty)"
	}
	return strings.Join(paths, "\n")
}

func depth(path string) int {
	return len(strings.Split(path, "/"))
}

func loadIgnore(workspaceDir string) *ignore.GitIgnore {
	path := filepath.Join(workspaceDir, ".swarmignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return matcher
}
