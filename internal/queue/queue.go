// Package queue layers scheduling policy over the store: which pending
// tasks are ready to run, atomic claiming, dependency-cycle rejection, and
// the retry/rework state transitions a failed task goes through.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentswarm/swarm/internal/fileutil"
	"github.com/agentswarm/swarm/internal/store"
)

// Task is the scheduling-facing view of a queued unit of work.
type Task struct {
	TaskID      string
	Title       string
	Description string
	Priority    int
	DependsOn   []string
	BranchName  string
	Retries     int
}

// Queue wraps a store.Store with dependency-aware scheduling.
type Queue struct {
	db      *store.Store
	logsDir string
}

// New builds a Queue over an already-open store, recording per-task sidecar
// logs under logsDir.
func New(db *store.Store, logsDir string) *Queue {
	return &Queue{db: db, logsDir: logsDir}
}

// Add inserts a single task under a freshly generated task-<8 hex> id and
// returns the id.
func (q *Queue) Add(title, description string, priority int, dependsOn []string) (string, error) {
	taskID := newTaskID()
	depsJSON, err := json.Marshal(dependsOn)
	if err != nil {
		return "", fmt.Errorf("encoding depends_on: %w", err)
	}
	if err := q.db.InsertTask(taskID, title, description, priority, string(depsJSON)); err != nil {
		return "", err
	}
	return taskID, nil
}

// BatchTask is one entry in a batch submission, e.g. from the planner.
type BatchTask struct {
	TaskID      string
	Title       string
	Description string
	Priority    int
	DependsOn   []string
}

// AddBatch inserts many tasks at once, checking the whole batch for
// dependency cycles before writing anything. Existing task_ids are
// skipped (INSERT OR IGNORE), so re-running a planner against a
// partially seeded queue is safe.
func (q *Queue) AddBatch(tasks []BatchTask) error {
	if err := detectCycles(tasks); err != nil {
		return err
	}
	for _, t := range tasks {
		taskID := t.TaskID
		if taskID == "" {
			taskID = newTaskID()
		}
		depsJSON, err := json.Marshal(t.DependsOn)
		if err != nil {
			return fmt.Errorf("encoding depends_on for %s: %w", taskID, err)
		}
		if err := q.db.InsertTaskIgnore(taskID, t.Title, t.Description, t.Priority, string(depsJSON)); err != nil {
			return err
		}
	}
	return nil
}

// detectCycles rejects a batch whose depends_on graph contains a cycle,
// walking it the same way a dependency chain of stations is walked for
// cyclic watches: DFS with a three-color visited set.
func detectCycles(tasks []BatchTask) error {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.TaskID != "" {
			known[t.TaskID] = true
		}
	}

	adj := make(map[string][]string)
	for _, t := range tasks {
		if t.TaskID == "" {
			continue
		}
		for _, dep := range t.DependsOn {
			if known[dep] {
				adj[t.TaskID] = append(adj[t.TaskID], dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(node string) error
	visit = func(node string) error {
		color[node] = gray
		for _, dep := range adj[node] {
			if color[dep] == gray {
				return fmt.Errorf("dependency cycle detected: %s -> %s", node, dep)
			}
			if color[dep] == white {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}

	for node := range adj {
		if color[node] == white {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ready returns pending tasks whose dependencies are all done, in
// priority-then-age order, mirroring the prototype's get_ready_tasks.
func (q *Queue) Ready() ([]Task, error) {
	pending, err := q.db.PendingTasks()
	if err != nil {
		return nil, err
	}

	var ready []Task
	for _, row := range pending {
		var deps []string
		if row.DependsOn != "" {
			if err := json.Unmarshal([]byte(row.DependsOn), &deps); err != nil {
				return nil, fmt.Errorf("parsing depends_on for %s: %w", row.TaskID, err)
			}
		}
		if len(deps) > 0 {
			n, err := q.db.CountNotDone(deps)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				continue
			}
		}
		ready = append(ready, Task{
			TaskID:      row.TaskID,
			Title:       row.Title,
			Description: row.Description,
			Priority:    row.Priority,
			DependsOn:   deps,
		})
	}
	return ready, nil
}

// Claim picks the highest-priority ready task and atomically assigns it to
// workerID. Returns (nil, nil) if nothing is ready or if every ready task
// lost the claim race to another worker — the caller should treat both as
// "nothing to do this poll".
func (q *Queue) Claim(workerID string) (*Task, error) {
	ready, err := q.Ready()
	if err != nil {
		return nil, err
	}
	for _, t := range ready {
		branch := fmt.Sprintf("agent-%s", truncate(strings.TrimPrefix(t.TaskID, "task-"), 8))
		rows, err := q.db.ClaimTask(t.TaskID, workerID, branch)
		if err != nil {
			return nil, err
		}
		if rows == 1 {
			t.BranchName = branch
			return &t, nil
		}
		// Lost the race for this task; try the next ready candidate.
	}
	return nil, nil
}

// Complete marks a task done with its result payload.
func (q *Queue) Complete(taskID, result string) error {
	return q.db.CompleteTask(taskID, result, "done")
}

// Fail requeues a task as pending with an incremented retry count, unless
// it has already exhausted maxRetries, in which case it is routed straight
// to fix_needed instead of spinning forever on a task the reconciler will
// have to rework anyway.
func (q *Queue) Fail(taskID, errMsg string, maxRetries int) error {
	task, err := q.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if task != nil && task.Retries >= maxRetries {
		return q.db.MarkFixNeeded(taskID, errMsg)
	}
	return q.db.RequeueFailed(taskID, errMsg)
}

// MarkFixNeeded routes a task straight to fix_needed, e.g. after a merge
// conflict the workspace guard could not resolve.
func (q *Queue) MarkFixNeeded(taskID, errMsg string) error {
	return q.db.MarkFixNeeded(taskID, errMsg)
}

// MarkReplaced marks a task superseded by a synthesized rework task.
func (q *Queue) MarkReplaced(taskID string) error {
	return q.db.MarkReplaced(taskID)
}

// Stats summarizes queue state for the status CLI and the supervisor's
// quiescence check.
type Stats struct {
	Pending    int
	Running    int
	Done       int
	Failed     int
	FixNeeded  int
	Replaced   int
	Total      int
}

// Stats reads current per-status counts.
func (q *Queue) Stats() (Stats, error) {
	counts, total, err := q.db.StatusCounts()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Pending:   counts["pending"],
		Running:   counts["running"],
		Done:      counts["done"],
		Failed:    counts["failed"],
		FixNeeded: counts["fix_needed"],
		Replaced:  counts["replaced"],
		Total:     total,
	}, nil
}

// Quiescent reports whether the swarm has nothing left to do: no pending
// and no running tasks. fix_needed tasks alone do not block quiescence —
// the reconciler is responsible for turning those into new pending work.
func (s Stats) Quiescent() bool {
	return s.Pending == 0 && s.Running == 0
}

// Clear empties the queue and its logs, used by `swarm reset`.
func (q *Queue) Clear() error {
	return q.db.Clear()
}

// LogEvent records an agent_log row and appends a line to the task's
// sidecar log file under logsDir.
func (q *Queue) LogEvent(workerID, taskID, event, message string, tokens int) error {
	if err := q.db.AppendLog(workerID, taskID, event, message, tokens); err != nil {
		return err
	}
	if q.logsDir == "" {
		return nil
	}
	if err := fileutil.EnsureDir(q.logsDir); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	path := fileutil.TaskLogPath(q.logsDir, taskID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening task log %s: %w", path, err)
	}
	defer f.Close()
	line := fmt.Sprintf("[%s] %s: %s\n", time.Now().UTC().Format(time.RFC3339), event, message)
	_, err = f.WriteString(line)
	return err
}

func newTaskID() string {
	raw := uuid.New()
	hex := fmt.Sprintf("%x", raw[:4])
	return "task-" + hex
}

// truncate returns the first n bytes of s, or all of s if it's shorter.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
