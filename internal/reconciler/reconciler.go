// Package reconciler runs the background health sweep: stall detection,
// fix_needed promotion to rework tasks, and (optionally) an LLM-assisted
// root-cause pass over unresolved errors.
package reconciler

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/store"
)

// Completer is the subset of llm.Client the optional analysis step needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Reconciler periodically sweeps the task store for stalled workers and
// fix_needed tasks, synthesizing rework as needed.
type Reconciler struct {
	Store         *store.Store
	Queue         *queue.Queue
	WorkspaceDir  string
	WorkerTimeout time.Duration
	LLM           Completer // nil unless llm_analysis is enabled
	Log           zerolog.Logger
}

// New builds a Reconciler. llm may be nil to disable the optional
// analysis sweep.
func New(db *store.Store, q *queue.Queue, workspaceDir string, workerTimeout time.Duration, llm Completer, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		Store:         db,
		Queue:         q,
		WorkspaceDir:  workspaceDir,
		WorkerTimeout: workerTimeout,
		LLM:           llm,
		Log:           log,
	}
}

// Run drives the periodic sweep until ctx is canceled. The caller is
// expected to invoke RunOnce once more, synchronously, after Run returns
// — a drained supervisor's final sweep must complete before it packages
// the delivery archive, which a background goroutine can't guarantee.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// SweepResult summarizes what one reconciliation pass found and did.
type SweepResult struct {
	SyntaxOK     bool
	StalledCount int
	FixesCreated int
}

// RunOnce performs a single sweep: syntax check, stall detection, and
// fix_needed promotion. Any individual sweep's failure is logged and does
// not abort the other sweeps — the reconciler must keep running even if
// one check errors.
func (r *Reconciler) RunOnce(ctx context.Context) SweepResult {
	var result SweepResult

	if ok, output := r.checkSyntax(); !ok {
		r.Log.Warn().Str("output", truncate(output, 200)).Msg("syntax errors detected")
		if _, err := r.Queue.Add("Fix Python syntax errors", "Fix syntax errors: "+truncate(output, 500), 1, nil); err != nil {
			r.Log.Error().Err(err).Msg("failed to create syntax fix task")
		}
		_ = r.Queue.LogEvent("reconciler", "syntax", "error", truncate(output, 200), 0)
		result.SyntaxOK = false
	} else {
		result.SyntaxOK = true
	}

	stalled, err := r.sweepStalled()
	if err != nil {
		r.Log.Error().Err(err).Msg("stall sweep failed")
	}
	result.StalledCount = stalled

	fixes, err := r.sweepFixNeeded(ctx)
	if err != nil {
		r.Log.Error().Err(err).Msg("rework sweep failed")
	}
	result.FixesCreated = fixes
	if fixes > 0 {
		r.Log.Info().Int("fixes_created", fixes).Msg("created fix tasks")
	}

	return result
}

// checkSyntax runs a whole-workspace Python syntax pass, mirroring the
// prototype's compileall sweep. A missing python3 toolchain is treated as
// a pass — this check only meaningfully applies to Python projects.
func (r *Reconciler) checkSyntax() (ok bool, output string) {
	if _, err := exec.LookPath("python3"); err != nil {
		return true, ""
	}
	cmd := exec.Command("python3", "-m", "compileall", r.WorkspaceDir, "-q")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, string(out)
	}
	return true, ""
}

// sweepStalled re-queues any running task whose started_at is older than
// WorkerTimeout, treating it as abandoned by a worker that died or hung.
func (r *Reconciler) sweepStalled() (int, error) {
	running, err := r.Store.TasksByStatus("running")
	if err != nil {
		return 0, fmt.Errorf("listing running tasks: %w", err)
	}

	count := 0
	for _, t := range running {
		if !t.StartedAt.Valid {
			continue
		}
		elapsed := time.Since(t.StartedAt.Time)
		if elapsed <= r.WorkerTimeout {
			continue
		}
		r.Log.Warn().Str("task_id", t.TaskID).Str("worker_id", t.AssignedWorker.String).
			Dur("elapsed", elapsed).Msg("stalled worker")
		_ = r.Queue.LogEvent("reconciler", t.TaskID, "stalled",
			fmt.Sprintf("worker %s stalled after %s", t.AssignedWorker.String, elapsed.Round(time.Second)), 0)
		if err := r.Queue.Fail(t.TaskID, fmt.Sprintf("stalled after %s", elapsed.Round(time.Second)), maxRetriesUnbounded); err != nil {
			return count, fmt.Errorf("requeuing stalled task %s: %w", t.TaskID, err)
		}
		count++
	}
	return count, nil
}

// maxRetriesUnbounded disables the retry cap for stall requeues: a stall
// isn't the task's fault, so a stall alone never routes a task to
// fix_needed. The requeue still increments retries, and those count
// toward the cap the next time a worker fails the task.
const maxRetriesUnbounded = 1 << 30

// sweepFixNeeded promotes every task currently in fix_needed to a
// synthesized "Fix: <title>" rework task, marking the original replaced.
// When an LLM is configured, its analysis augments the fix description;
// the promotion itself is mandatory and never blocks on that call failing.
func (r *Reconciler) sweepFixNeeded(ctx context.Context) (int, error) {
	fixNeeded, err := r.Store.TasksByStatus("fix_needed")
	if err != nil {
		return 0, fmt.Errorf("listing fix_needed tasks: %w", err)
	}

	created := 0
	for _, t := range fixNeeded {
		desc := fmt.Sprintf("Fix the issue: %s", t.Error.String)
		if r.LLM != nil {
			if analyzed, ok := r.analyze(ctx, t.Error.String); ok {
				desc = analyzed
			}
		}

		newID, err := r.Queue.Add("Fix: "+t.Title, desc, 1, nil)
		if err != nil {
			return created, fmt.Errorf("creating fix task for %s: %w", t.TaskID, err)
		}
		if err := r.Queue.MarkReplaced(t.TaskID); err != nil {
			return created, fmt.Errorf("marking %s replaced: %w", t.TaskID, err)
		}
		_ = r.Queue.LogEvent("reconciler", t.TaskID, "fix_created", "Replaced by "+newID, 0)
		created++
	}
	return created, nil
}

const analysisPrompt = `You analyze a swarm coding agent's task failure and produce a targeted fix description.`

// analyze asks the LLM for a root-cause-informed fix description. It
// returns ok=false on any failure — a timed-out or malformed analysis
// call degrades to the generic description rather than blocking rework.
func (r *Reconciler) analyze(ctx context.Context, errMsg string) (string, bool) {
	userPrompt := fmt.Sprintf("Error to fix:\n\n%s\n\nDescribe a specific fix.", errMsg)
	response, err := r.LLM.Complete(ctx, analysisPrompt, userPrompt)
	if err != nil || response == "" {
		return "", false
	}
	return response, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
