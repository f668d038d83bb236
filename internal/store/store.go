// Package store provides the durable, WAL-backed SQLite layer underneath
// the task queue: plain rows in, plain rows out, no scheduling policy. The
// queue package decides what "ready" or "claimed" means; this package just
// stores and updates state.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentswarm/swarm/internal/fileutil"
)

// Task mirrors one row of the tasks table.
type Task struct {
	ID             int64
	TaskID         string
	Title          string
	Description    string
	Status         string
	Priority       int
	Retries        int
	DependsOn      string // JSON-encoded []string
	AssignedWorker sql.NullString
	BranchName     sql.NullString
	Result         sql.NullString
	Error          sql.NullString
	CreatedAt      time.Time
	StartedAt      sql.NullTime
	CompletedAt    sql.NullTime
}

// RunMeta mirrors the single-row run_meta table that tracks a run's
// headline counters, written by the supervisor at the start of a run and
// again once the queue drains.
type RunMeta struct {
	ID             int64
	ProjectName    string
	Spec           string
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	TotalCostUSD   float64
	StartedAt      time.Time
	Status         string
}

// Store owns a single SQLite connection pool in WAL mode.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at path, enabling
// WAL mode and a busy timeout so concurrent worker processes block on
// writes instead of failing with SQLITE_BUSY.
func Open(path string) (*Store, error) {
	if err := fileutil.EnsureDir(dirOf(path)); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=30000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// SQLite only tolerates one writer at a time; a single shared connection
	// turns concurrent writers in this process into a queue instead of
	// SQLITE_BUSY errors under load.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT DEFAULT 'pending',
	priority INTEGER DEFAULT 5,
	retries INTEGER DEFAULT 0,
	depends_on TEXT DEFAULT '[]',
	assigned_worker TEXT,
	branch_name TEXT,
	result TEXT,
	error TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	started_at TIMESTAMP,
	completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agent_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	worker_id TEXT,
	task_id TEXT,
	event TEXT,
	message TEXT,
	tokens_used INTEGER DEFAULT 0,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_meta (
	id INTEGER PRIMARY KEY,
	project_name TEXT,
	spec TEXT,
	total_tasks INTEGER DEFAULT 0,
	completed_tasks INTEGER DEFAULT 0,
	failed_tasks INTEGER DEFAULT 0,
	total_cost_usd REAL DEFAULT 0,
	started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	status TEXT DEFAULT 'running'
);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// InsertTask inserts a new task row. depends_on is stored verbatim as the
// JSON-encoded dependency list the caller already built.
func (s *Store) InsertTask(taskID, title, description string, priority int, dependsOnJSON string) error {
	_, err := s.db.Exec(
		`INSERT INTO tasks (task_id, title, description, priority, depends_on) VALUES (?, ?, ?, ?, ?)`,
		taskID, title, description, priority, dependsOnJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", taskID, err)
	}
	return nil
}

// InsertTaskIgnore inserts a task row, silently skipping it if task_id
// already exists. Used by batch imports from the planner, which may be
// re-run against a partially populated queue.
func (s *Store) InsertTaskIgnore(taskID, title, description string, priority int, dependsOnJSON string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO tasks (task_id, title, description, priority, depends_on) VALUES (?, ?, ?, ?, ?)`,
		taskID, title, description, priority, dependsOnJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", taskID, err)
	}
	return nil
}

// PendingTasks returns every task currently in status 'pending', ordered
// by priority ascending then creation order — the same ordering the
// dependency-ready filter in the queue package consumes.
func (s *Store) PendingTasks() ([]Task, error) {
	rows, err := s.db.Query(
		`SELECT task_id, title, description, priority, depends_on
		 FROM tasks WHERE status = 'pending' ORDER BY priority ASC, created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.TaskID, &t.Title, &t.Description, &t.Priority, &t.DependsOn); err != nil {
			return nil, fmt.Errorf("scanning pending task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountNotDone returns how many of the given task IDs are in any status
// other than 'done'. Used to decide whether a task's dependencies are
// satisfied.
func (s *Store) CountNotDone(taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]byte, 0, len(taskIDs)*2)
	args := make([]interface{}, len(taskIDs))
	for i, id := range taskIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tasks WHERE task_id IN (%s) AND status != 'done'`, placeholders)
	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting unfinished deps: %w", err)
	}
	return count, nil
}

// ClaimTask performs the compare-and-swap claim: it sets status='running',
// assigned_worker and branch_name, but only if the row is still 'pending'.
// Returns the number of rows affected (0 or 1) so the caller can tell a
// lost race from a successful claim without a second round-trip.
func (s *Store) ClaimTask(taskID, workerID, branchName string) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE tasks SET status = 'running', assigned_worker = ?, branch_name = ?, started_at = CURRENT_TIMESTAMP
		 WHERE task_id = ? AND status = 'pending'`,
		workerID, branchName, taskID,
	)
	if err != nil {
		return 0, fmt.Errorf("claiming task %s: %w", taskID, err)
	}
	return res.RowsAffected()
}

// CompleteTask marks a task done (or another terminal status) with its
// result payload.
func (s *Store) CompleteTask(taskID, result, status string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, result = ?, completed_at = CURRENT_TIMESTAMP WHERE task_id = ?`,
		status, result, taskID,
	)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}
	return nil
}

// RequeueFailed sets a task back to pending with an incremented retry
// count, clearing started_at so it is eligible to be claimed again.
func (s *Store) RequeueFailed(taskID, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'pending', error = ?, retries = retries + 1, started_at = NULL WHERE task_id = ?`,
		errMsg, taskID,
	)
	if err != nil {
		return fmt.Errorf("requeuing task %s: %w", taskID, err)
	}
	return nil
}

// MarkFixNeeded marks a task as needing reconciler-driven rework.
func (s *Store) MarkFixNeeded(taskID, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = 'fix_needed', error = ?, completed_at = CURRENT_TIMESTAMP WHERE task_id = ?`,
		errMsg, taskID,
	)
	if err != nil {
		return fmt.Errorf("marking task %s fix_needed: %w", taskID, err)
	}
	return nil
}

// MarkReplaced marks a task as superseded by a synthesized rework task.
func (s *Store) MarkReplaced(taskID string) error {
	_, err := s.db.Exec(`UPDATE tasks SET status = 'replaced' WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("marking task %s replaced: %w", taskID, err)
	}
	return nil
}

// GetTask fetches a single task row by task_id.
func (s *Store) GetTask(taskID string) (*Task, error) {
	var t Task
	err := s.db.QueryRow(
		`SELECT id, task_id, title, description, status, priority, retries, depends_on,
		        assigned_worker, branch_name, result, error, created_at, started_at, completed_at
		 FROM tasks WHERE task_id = ?`, taskID,
	).Scan(&t.ID, &t.TaskID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Retries, &t.DependsOn,
		&t.AssignedWorker, &t.BranchName, &t.Result, &t.Error, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching task %s: %w", taskID, err)
	}
	return &t, nil
}

// TasksByStatus returns every task in the given status, oldest first.
func (s *Store) TasksByStatus(status string) ([]Task, error) {
	rows, err := s.db.Query(
		`SELECT task_id, title, description, status, priority, retries, depends_on, branch_name, started_at
		 FROM tasks WHERE status = ? ORDER BY created_at ASC`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tasks by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.TaskID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Retries,
			&t.DependsOn, &t.BranchName, &t.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning task by status: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// StatusCounts returns the number of tasks in each status, plus the total.
func (s *Store) StatusCounts() (map[string]int, int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, 0, fmt.Errorf("counting task statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, 0, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
		total += n
	}
	return counts, total, rows.Err()
}

// AllTasks returns every task row, oldest first, for status rendering.
func (s *Store) AllTasks() ([]Task, error) {
	rows, err := s.db.Query(
		`SELECT task_id, title, status, priority, retries, depends_on, assigned_worker
		 FROM tasks ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.TaskID, &t.Title, &t.Status, &t.Priority, &t.Retries, &t.DependsOn, &t.AssignedWorker); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Clear deletes every row from tasks, agent_log, and run_meta, resetting
// the store to its freshly-migrated state.
func (s *Store) Clear() error {
	for _, table := range []string{"tasks", "agent_log", "run_meta"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// AppendLog records one agent_log event row.
func (s *Store) AppendLog(workerID, taskID, event, message string, tokens int) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_log (worker_id, task_id, event, message, tokens_used) VALUES (?, ?, ?, ?, ?)`,
		workerID, taskID, event, message, tokens,
	)
	if err != nil {
		return fmt.Errorf("appending log event: %w", err)
	}
	return nil
}

// InsertRunMeta creates the single run_meta row for a new run.
func (s *Store) InsertRunMeta(projectName, spec string, totalTasks int) error {
	_, err := s.db.Exec(
		`INSERT INTO run_meta (id, project_name, spec, total_tasks) VALUES (1, ?, ?, ?)`,
		projectName, spec, totalTasks,
	)
	if err != nil {
		return fmt.Errorf("inserting run_meta: %w", err)
	}
	return nil
}

// UpdateRunMeta refreshes the run_meta counters and terminal status.
func (s *Store) UpdateRunMeta(completedTasks, failedTasks int, status string) error {
	_, err := s.db.Exec(
		`UPDATE run_meta SET completed_tasks = ?, failed_tasks = ?, status = ? WHERE id = 1`,
		completedTasks, failedTasks, status,
	)
	if err != nil {
		return fmt.Errorf("updating run_meta: %w", err)
	}
	return nil
}

// GetRunMeta fetches the single run_meta row, if one exists.
func (s *Store) GetRunMeta() (*RunMeta, error) {
	var m RunMeta
	err := s.db.QueryRow(
		`SELECT id, project_name, spec, total_tasks, completed_tasks, failed_tasks, total_cost_usd, started_at, status
		 FROM run_meta WHERE id = 1`,
	).Scan(&m.ID, &m.ProjectName, &m.Spec, &m.TotalTasks, &m.CompletedTasks, &m.FailedTasks, &m.TotalCostUSD, &m.StartedAt, &m.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching run_meta: %w", err)
	}
	return &m, nil
}
