// Package workspace serializes git operations on the shared swarm
// workspace across worker processes. Each exported method acquires an
// advisory file lock for exactly its own critical section and releases it
// on every exit path — the lock must never wrap a worker's whole task
// lifecycle, or concurrency collapses to one worker at a time.
package workspace

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/agentswarm/swarm/internal/fileutil"
	"github.com/agentswarm/swarm/internal/git"
)

// Trunk is the distinguished branch every task branch merges into.
const Trunk = "main"

// Guard wraps a git.Repo with mutual exclusion across processes.
type Guard struct {
	dir  string
	repo *git.Repo
}

// New builds a Guard over the workspace directory dir.
func New(dir string) *Guard {
	return &Guard{dir: dir, repo: git.NewRepo(dir)}
}

// Dir returns the workspace's root directory.
func (g *Guard) Dir() string {
	return g.dir
}

func (g *Guard) lockPath() string {
	return filepath.Join(g.dir, ".git", "swarm.lock")
}

func (g *Guard) withLock(fn func() error) error {
	if err := fileutil.EnsureDir(filepath.Join(g.dir, ".git")); err != nil {
		return fmt.Errorf("preparing lock directory: %w", err)
	}
	fl := flock.New(g.lockPath())
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring workspace lock: %w", err)
	}
	defer fl.Unlock()
	return fn()
}

// InitIfAbsent creates the repo, trunk branch, and an empty root commit if
// the workspace isn't already a git repository.
func (g *Guard) InitIfAbsent() error {
	return g.withLock(func() error {
		if err := fileutil.EnsureDir(g.dir); err != nil {
			return fmt.Errorf("creating workspace directory: %w", err)
		}
		return g.repo.InitRepo(Trunk)
	})
}

// CheckoutFreshBranch switches to trunk, force-deletes any stale branch of
// the same name, and checks out a fresh one — supporting a worker's retry
// path after a previous attempt on the same task left a stale branch.
func (g *Guard) CheckoutFreshBranch(name string) error {
	return g.withLock(func() error {
		return g.repo.CheckoutFreshBranch(Trunk, name)
	})
}

// CommitAndMerge commits all changes on the current branch and attempts a
// non-fast-forward merge into trunk. On conflict the merge is aborted, the
// working tree is returned to branch, and ok is false — the caller should
// route the task to fix_needed rather than retry blindly.
func (g *Guard) CommitAndMerge(branch, message string) (ok bool, err error) {
	err = g.withLock(func() error {
		changed, err := g.repo.HasChanges()
		if err != nil {
			return fmt.Errorf("checking for changes: %w", err)
		}
		if changed {
			if err := g.repo.StageAll(); err != nil {
				return fmt.Errorf("staging changes: %w", err)
			}
			if err := g.repo.Commit(message); err != nil {
				return fmt.Errorf("committing: %w", err)
			}
		}
		merged, mergeErr := g.repo.MergeNoFF(Trunk, branch, message)
		if mergeErr != nil {
			return fmt.Errorf("merging %s: %w", branch, mergeErr)
		}
		ok = merged
		return nil
	})
	return ok, err
}

// ReadFromTrunk extracts a file's bytes from trunk's object tree without
// switching the working tree, so concurrent branch checkouts by other
// workers never race with the read. found is false if the path is absent.
func (g *Guard) ReadFromTrunk(path string) (content []byte, found bool, err error) {
	err = g.withLock(func() error {
		content, found, err = g.repo.Show(Trunk, path)
		return err
	})
	return content, found, err
}

// ListTrunkTree lists every file path tracked at trunk, for the worker's
// shallow tree-listing prompt context.
func (g *Guard) ListTrunkTree() ([]string, error) {
	var paths []string
	err := g.withLock(func() error {
		var err error
		paths, err = g.repo.ListTree(Trunk)
		return err
	})
	return paths, err
}

// WriteSharedFile writes a project-level file (SPEC.md, FEATURES.json)
// directly onto trunk and commits it. Unlike task output, these files are
// never written on a task branch — the planner is the only writer, and it
// runs before any worker branch exists.
func (g *Guard) WriteSharedFile(name string, content []byte) error {
	return g.withLock(func() error {
		if err := g.repo.CheckoutTrunk(Trunk); err != nil {
			return fmt.Errorf("checking out trunk: %w", err)
		}
		return g.repo.WriteAndCommit(name, content, "swarm: update "+name)
	})
}
