// Package worker implements the claim-prompt-write-merge-package loop a
// single worker process runs until the queue has nothing left to claim.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentswarm/swarm/internal/archive"
	"github.com/agentswarm/swarm/internal/llm"
	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/ratelimit"
	"github.com/agentswarm/swarm/internal/syntax"
	"github.com/agentswarm/swarm/internal/treeview"
	"github.com/agentswarm/swarm/internal/workspace"
)

// SystemPrompt is the worker's fixed system role message. Prompt wording
// is an external concern; this is the minimal contract-bearing text the
// queue and workspace guarantees depend on (JSON output shape).
const SystemPrompt = `You are a software engineering agent completing one task in a larger project.
Write complete, working code. No placeholders or TODOs.
Respond with a JSON object: {"files": [{"path": "relative/path", "content": "full file content"}], "summary": "one sentence", "tokens_estimate": 500}.
Only create files relevant to your task.`

// Worker runs the claim loop for a single worker_id against a shared
// queue, workspace, and rate limiter.
type Worker struct {
	ID         string
	Queue      *queue.Queue
	Workspace  *workspace.Guard
	Limiter    *ratelimit.Limiter
	LLM        *llm.Client
	OutputsDir string
	TreeDepth  int
	MaxRetries int
	Log        zerolog.Logger
}

// Run drives the worker's claim loop until the queue has nothing left to
// offer, processing one task per iteration and never holding any lock
// across an iteration boundary.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Workspace.InitIfAbsent(); err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}

	for {
		task, err := w.Queue.Claim(w.ID)
		if err != nil {
			return fmt.Errorf("claiming task: %w", err)
		}
		if task == nil {
			w.Log.Info().Msg("no more tasks, exiting")
			return nil
		}
		w.runTask(ctx, task)
	}
}

// runTask executes one claimed task end to end, converting every failure
// mode into the appropriate queue transition rather than propagating an
// error — a single task's failure must never kill the worker process,
// since other ready tasks may still be claimable.
func (w *Worker) runTask(ctx context.Context, task *queue.Task) {
	w.Log.Info().Str("task_id", task.TaskID).Str("title", task.Title).Msg("started")
	_ = w.Queue.LogEvent(w.ID, task.TaskID, "started", "Task: "+task.Title, 0)

	result, err := w.execute(ctx, task)
	if err != nil {
		w.Log.Error().Err(err).Str("task_id", task.TaskID).Msg("failed")
		_ = w.Queue.LogEvent(w.ID, task.TaskID, "error", truncate(err.Error(), 200), 0)
		if ferr := w.Queue.Fail(task.TaskID, truncate(err.Error(), 500), w.MaxRetries); ferr != nil {
			w.Log.Error().Err(ferr).Str("task_id", task.TaskID).Msg("failed to requeue task")
		}
		return
	}

	if result.conflict {
		w.Log.Warn().Str("task_id", task.TaskID).Msg("merge conflict")
		_ = w.Queue.LogEvent(w.ID, task.TaskID, "conflict", "Merge conflict", 0)
		if merr := w.Queue.MarkFixNeeded(task.TaskID, "Merge conflict"); merr != nil {
			w.Log.Error().Err(merr).Str("task_id", task.TaskID).Msg("failed to mark fix_needed")
		}
		return
	}

	w.Log.Info().Str("task_id", task.TaskID).Msg("done")
	_ = w.Queue.LogEvent(w.ID, task.TaskID, "done", result.summary, result.tokens)
	payload, _ := json.Marshal(map[string]interface{}{
		"status":  "success",
		"files":   result.written,
		"summary": result.summary,
		"archive": result.archivePath,
	})
	if cerr := w.Queue.Complete(task.TaskID, string(payload)); cerr != nil {
		w.Log.Error().Err(cerr).Str("task_id", task.TaskID).Msg("failed to mark task complete")
	}
}

type taskOutcome struct {
	conflict    bool
	written     []string
	summary     string
	tokens      int
	archivePath string
}

// execute runs steps 2-8 of the pipeline for one claimed task.
func (w *Worker) execute(ctx context.Context, task *queue.Task) (taskOutcome, error) {
	if err := w.Workspace.CheckoutFreshBranch(task.BranchName); err != nil {
		return taskOutcome{}, fmt.Errorf("checking out branch: %w", err)
	}

	spec, _, err := w.Workspace.ReadFromTrunk("SPEC.md")
	if err != nil {
		return taskOutcome{}, fmt.Errorf("reading SPEC.md: %w", err)
	}
	features, found, err := w.Workspace.ReadFromTrunk("FEATURES.json")
	if err != nil {
		return taskOutcome{}, fmt.Errorf("reading FEATURES.json: %w", err)
	}
	if !found {
		features = []byte("[]")
	}

	allPaths, err := w.Workspace.ListTrunkTree()
	if err != nil {
		return taskOutcome{}, fmt.Errorf("listing workspace tree: %w", err)
	}
	tree := treeview.Render(treeview.Build(w.Workspace.Dir(), allPaths, w.TreeDepth))

	if err := w.Limiter.Reserve(); err != nil {
		return taskOutcome{}, fmt.Errorf("reserving rate limit slot: %w", err)
	}

	userPrompt := buildUserPrompt(task, string(spec), tree, string(features))
	response, err := w.LLM.Complete(ctx, SystemPrompt, userPrompt)
	if err != nil {
		return taskOutcome{}, fmt.Errorf("calling llm: %w", err)
	}

	result := llm.ParseTaskResult(response)

	written, err := w.writeAndCheck(result.Files)
	if err != nil {
		return taskOutcome{}, err
	}

	commitMsg := fmt.Sprintf("task: %s", task.Title)
	merged, err := w.Workspace.CommitAndMerge(task.BranchName, commitMsg)
	if err != nil {
		return taskOutcome{}, fmt.Errorf("committing and merging: %w", err)
	}
	if !merged {
		return taskOutcome{conflict: true}, nil
	}

	archivePath, err := w.packageOutput(task, written)
	if err != nil {
		// Packaging is best-effort: the merge already landed, so the task
		// is a success even if the archive could not be written.
		w.Log.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to package output")
	}

	return taskOutcome{
		written:     written,
		summary:     result.Summary,
		tokens:      result.TokensEstimate,
		archivePath: archivePath,
	}, nil
}

func buildUserPrompt(task *queue.Task, spec, tree, features string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task.Title)
	fmt.Fprintf(&b, "Description: %s\n\n", task.Description)
	fmt.Fprintf(&b, "Project Specification:\n%s\n\n", spec)
	fmt.Fprintf(&b, "Current File Tree:\n%s\n\n", tree)
	fmt.Fprintf(&b, "All Tasks (FEATURES.json):\n%s\n\n", features)
	b.WriteString("Execute this task. Write complete, working code. No placeholders or TODOs.\n")
	return b.String()
}

// writeAndCheck writes every file through to the workspace, rejecting any
// path that would escape the workspace root, then syntax-checks it. The
// first syntax failure aborts the whole task before anything is committed.
func (w *Worker) writeAndCheck(files []llm.FileEdit) ([]string, error) {
	var written []string
	for _, f := range files {
		if f.Path == "" {
			continue
		}
		rel, err := safeJoin(w.Workspace.Dir(), f.Path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(rel), 0755); err != nil {
			return nil, fmt.Errorf("creating directories for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(rel, []byte(f.Content), 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Path, err)
		}
		written = append(written, f.Path)

		if err := syntax.Check(w.Workspace.Dir(), f.Path); err != nil {
			return nil, err
		}
	}
	return written, nil
}

// safeJoin resolves path under root, rejecting any result that escapes
// root via ".." or an absolute override — an LLM response is untrusted
// input and must never be allowed to write outside the workspace. The
// check is lexical: symlinks are not resolved, so a path through a
// symlink inside root that points elsewhere is not rejected.
func safeJoin(root, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("rejecting absolute file path %q", path)
	}
	joined := filepath.Join(root, path)
	cleanRoot := filepath.Clean(root) + string(filepath.Separator)
	if !strings.HasPrefix(joined+string(filepath.Separator), cleanRoot) {
		return "", fmt.Errorf("rejecting file path %q: escapes workspace", path)
	}
	return joined, nil
}

// packageOutput snapshots written files from the trunk object store into
// a per-task tar.gz named <task-prefix>-<worker>-<ISO-Z>.tar.gz.
func (w *Worker) packageOutput(task *queue.Task, written []string) (string, error) {
	prefix := truncate(task.TaskID, 8)
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	name := fmt.Sprintf("%s-%s-%s", prefix, w.ID, timestamp)
	return archive.Write(w.Workspace, w.OutputsDir, name, written)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
