// Package planner decomposes a project specification into a task list via
// an LLM call, then writes FEATURES.json and seeds the queue.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/workspace"
)

// SystemPrompt is the planner's fixed system role message.
const SystemPrompt = `You decompose a software project specification into a task list for a swarm of coding agents.
Output ONLY a JSON array of tasks, no other text.`

const maxTasks = 20

// Completer is the subset of llm.Client the planner needs.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// PlannedTask mirrors one element of the planner's JSON array response.
type PlannedTask struct {
	TaskID      string   `json:"task_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	DependsOn   []string `json:"depends_on"`
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// Plan calls the LLM once and parses its response into a task list,
// bounded at maxTasks even if the model returns more.
func Plan(ctx context.Context, c Completer, specContent string) ([]PlannedTask, error) {
	userPrompt := fmt.Sprintf(`Project Specification:

%s

Generate a task list that implements this project. Output ONLY a JSON array of tasks, no other text.

Required format:
[
  {
    "title": "Create project file structure",
    "description": "Create all directories and placeholder files the specification defines. Do not write logic yet.",
    "priority": 1,
    "depends_on": []
  }
]

Rules:
- Maximum %d tasks
- Each task completable in under 5 minutes
- Priority 1 = first (structure, config)
- Priority 5 = middle (features)
- Priority 9 = last (testing, integration)`, specContent, maxTasks)

	response, err := c.Complete(ctx, SystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("calling planner llm: %w", err)
	}

	raw := response
	if m := jsonArrayRe.FindString(response); m != "" {
		raw = m
	}

	var tasks []PlannedTask
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, fmt.Errorf("parsing planner response: %w\n\nresponse:\n%s", err, truncate(response, 1000))
	}

	if len(tasks) > maxTasks {
		tasks = tasks[:maxTasks]
	}
	return tasks, nil
}

// Run writes SPEC.md to the workspace, plans the task list, writes
// FEATURES.json, and seeds the queue — the full planner contract a
// supervisor invokes once per run.
func Run(ctx context.Context, c Completer, ws *workspace.Guard, q *queue.Queue, specContent string) ([]PlannedTask, error) {
	if err := ws.InitIfAbsent(); err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	if err := writeTrunkFile(ws, "SPEC.md", []byte(specContent)); err != nil {
		return nil, fmt.Errorf("writing SPEC.md: %w", err)
	}

	tasks, err := Plan(ctx, c, specContent)
	if err != nil {
		return nil, err
	}

	featuresJSON, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding FEATURES.json: %w", err)
	}
	if err := writeTrunkFile(ws, "FEATURES.json", featuresJSON); err != nil {
		return nil, fmt.Errorf("writing FEATURES.json: %w", err)
	}

	batch := make([]queue.BatchTask, len(tasks))
	for i, t := range tasks {
		batch[i] = queue.BatchTask{
			TaskID:      t.TaskID,
			Title:       t.Title,
			Description: t.Description,
			Priority:    priorityOrDefault(t.Priority),
			DependsOn:   t.DependsOn,
		}
	}
	if err := q.AddBatch(batch); err != nil {
		return nil, fmt.Errorf("seeding queue: %w", err)
	}

	return tasks, nil
}

func priorityOrDefault(p int) int {
	if p == 0 {
		return 5
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// writeTrunkFile writes a project-level shared-state file (SPEC.md,
// FEATURES.json) directly into the workspace's working tree on trunk and
// commits it — these two files are written once, by the planner, before
// any worker branches exist.
func writeTrunkFile(ws *workspace.Guard, name string, content []byte) error {
	return ws.WriteSharedFile(name, content)
}
