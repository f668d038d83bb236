// Package git wraps the git CLI operations the workspace guard needs:
// branch-per-task isolation, serialized merges to trunk, and reading file
// contents out of the object store without touching the working tree.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Retry constants for transient git errors.
const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxAttempts  = 6
	retryMultiplier   = 2
)

// transientPatterns are error substrings that indicate a retryable git failure.
var transientPatterns = []string{
	"index file open failed",
	"index.lock",
	"cannot lock ref",
}

// isTransient returns true if the error message matches a known transient git failure.
func isTransient(errMsg string) bool {
	for _, p := range transientPatterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}

// Repo wraps git operations for a repository.
type Repo struct {
	Dir string
}

// NewRepo creates a Repo for the given directory.
func NewRepo(dir string) *Repo {
	return &Repo{Dir: dir}
}

// sleepFunc is the function used for sleeping between retries.
// Replaced in tests to avoid real delays.
var sleepFunc = time.Sleep

// run executes a git command in the repo directory and trims its output,
// for plumbing commands whose output is a ref, status line, or path list
// rather than file content. Transient errors (index locks, ref locks) are
// retried with exponential backoff.
func (r *Repo) run(args ...string) (string, error) {
	out, err := r.runRaw(args...)
	return strings.TrimSpace(string(out)), err
}

// runRaw is like run but returns the command's output untouched, for
// callers reading actual file content (Show) where leading/trailing
// whitespace is part of the file, not formatting.
func (r *Repo) runRaw(args ...string) ([]byte, error) {
	delay := retryInitialDelay
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		cmd := exec.Command("git", args...)
		cmd.Dir = r.Dir
		out, err := cmd.CombinedOutput()
		if err == nil {
			return out, nil
		}
		errMsg := strings.TrimSpace(string(out))
		if !isTransient(errMsg) || attempt == retryMaxAttempts-1 {
			return nil, fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), errMsg, err)
		}
		sleepFunc(delay)
		delay *= retryMultiplier
	}
	// unreachable — loop always returns
	return nil, nil
}

// HeadCommit returns the commit hash at HEAD for a given branch.
func (r *Repo) HeadCommit(branch string) (string, error) {
	return r.run("rev-parse", branch)
}

// BranchExists checks if a branch exists.
func (r *Repo) BranchExists(branch string) bool {
	_, err := r.run("rev-parse", "--verify", branch)
	return err == nil
}

// EnsureIdentity sets user.name and user.email in the repo's local config
// if they are not already resolvable (e.g. via global config or environment).
func (r *Repo) EnsureIdentity() {
	if _, err := r.run("config", "user.name"); err != nil {
		_, _ = r.run("config", "user.name", "swarm")
	}
	if _, err := r.run("config", "user.email"); err != nil {
		_, _ = r.run("config", "user.email", "swarm@localhost")
	}
}

// InitRepo initializes a git repository in Dir if one doesn't already
// exist, creates the trunk branch, and commits an empty root so trunk is
// always a valid ref a worker can branch from.
func (r *Repo) InitRepo(trunk string) error {
	if _, err := r.run("rev-parse", "--git-dir"); err == nil {
		return nil
	}
	if _, err := r.run("init", "-b", trunk); err != nil {
		return fmt.Errorf("initializing repo: %w", err)
	}
	r.EnsureIdentity()
	if _, err := r.run("commit", "--allow-empty", "--no-verify", "-m", "root"); err != nil {
		return fmt.Errorf("committing empty root: %w", err)
	}
	return nil
}

// CheckoutFreshBranch switches to trunk, force-deletes any stale branch
// with the given name, and creates+switches to a new one from trunk. The
// force-delete supports a worker's retry path, where a previous attempt on
// the same task left a stale branch behind.
func (r *Repo) CheckoutFreshBranch(trunk, name string) error {
	if _, err := r.run("checkout", trunk); err != nil {
		return fmt.Errorf("checking out trunk: %w", err)
	}
	if r.BranchExists(name) {
		if _, err := r.run("branch", "-D", name); err != nil {
			return fmt.Errorf("deleting stale branch %s: %w", name, err)
		}
	}
	if _, err := r.run("checkout", "-b", name); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

// CheckoutTrunk switches the working tree to trunk without creating or
// deleting any branch.
func (r *Repo) CheckoutTrunk(trunk string) error {
	_, err := r.run("checkout", trunk)
	return err
}

// WriteAndCommit writes name directly into the working tree and commits
// it on the current branch. Used for the project-level shared files the
// planner writes once, directly on trunk, before any task branch exists.
func (r *Repo) WriteAndCommit(name string, content []byte, message string) error {
	path := filepath.Join(r.Dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := r.StageAll(); err != nil {
		return fmt.Errorf("staging %s: %w", name, err)
	}
	if _, err := r.run("commit", "--no-verify", "-m", message); err != nil {
		return fmt.Errorf("committing %s: %w", name, err)
	}
	return nil
}

// HasChanges checks if there are any uncommitted changes in the worktree.
func (r *Repo) HasChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// StageAll stages all changes (including untracked files) in the worktree.
func (r *Repo) StageAll() error {
	_, err := r.run("add", "-A")
	return err
}

// Commit creates a commit with the given message, skipping hooks — no
// agent is around after the worker exits to fix a hook failure.
func (r *Repo) Commit(message string) error {
	_, err := r.run("commit", "--no-verify", "-m", message)
	return err
}

// MergeNoFF switches to trunk and attempts a non-fast-forward merge of
// branch. On conflict the merge is aborted and the working tree returned
// to branch, leaving trunk untouched; ok reports whether the merge landed.
func (r *Repo) MergeNoFF(trunk, branch, message string) (ok bool, err error) {
	if _, err := r.run("checkout", trunk); err != nil {
		return false, fmt.Errorf("checking out trunk: %w", err)
	}
	if _, err := r.run("merge", "--no-ff", "-m", message, branch); err != nil {
		if _, abortErr := r.run("merge", "--abort"); abortErr != nil {
			return false, fmt.Errorf("merge conflict on %s, abort also failed: %w", branch, abortErr)
		}
		if _, checkoutErr := r.run("checkout", branch); checkoutErr != nil {
			return false, fmt.Errorf("merge conflict on %s, returning to branch failed: %w", branch, checkoutErr)
		}
		return false, nil
	}
	return true, nil
}

// Show extracts a file's contents at the given ref without touching the
// working tree, so concurrent branch switches by other workers never race
// with a read. ok is false if the path does not exist at ref.
func (r *Repo) Show(ref, path string) (content []byte, ok bool, err error) {
	out, runErr := r.runRaw("show", ref+":"+path)
	if runErr != nil {
		if strings.Contains(runErr.Error(), "exists on disk, but not in") ||
			strings.Contains(runErr.Error(), "does not exist in") ||
			strings.Contains(runErr.Error(), "Invalid object name") {
			return nil, false, nil
		}
		return nil, false, runErr
	}
	return out, true, nil
}

// ListTree lists every file path tracked at ref, for the worker's shallow
// tree-listing prompt context.
func (r *Repo) ListTree(ref string) ([]string, error) {
	out, err := r.run("ls-tree", "-r", "--name-only", ref)
	if err != nil {
		return nil, fmt.Errorf("listing tree at %s: %w", ref, err)
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
