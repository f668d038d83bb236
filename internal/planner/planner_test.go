package planner

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/store"
	"github.com/agentswarm/swarm/internal/workspace"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return f.response, f.err
}

func hasGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestPlanParsesJSONArray(t *testing.T) {
	c := &fakeCompleter{response: `Here is the plan:
[
  {"title": "Scaffold project", "description": "Create dirs", "priority": 1, "depends_on": []},
  {"title": "Add feature", "description": "Implement it", "priority": 5, "depends_on": []}
]
Thanks.`}

	tasks, err := Plan(context.Background(), c, "build a todo app")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Plan() returned %d tasks, want 2", len(tasks))
	}
	if tasks[0].Title != "Scaffold project" {
		t.Errorf("tasks[0].Title = %q, want Scaffold project", tasks[0].Title)
	}
}

func TestPlanCapsAtMaxTasks(t *testing.T) {
	var items string
	for i := 0; i < 25; i++ {
		if i > 0 {
			items += ","
		}
		items += `{"title":"t","description":"d","priority":5,"depends_on":[]}`
	}
	c := &fakeCompleter{response: "[" + items + "]"}

	tasks, err := Plan(context.Background(), c, "spec")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(tasks) != maxTasks {
		t.Errorf("Plan() returned %d tasks, want capped at %d", len(tasks), maxTasks)
	}
}

func TestPlanReturnsErrorOnUnparsableResponse(t *testing.T) {
	c := &fakeCompleter{response: "I refuse to produce a plan."}
	if _, err := Plan(context.Background(), c, "spec"); err == nil {
		t.Fatal("Plan() error = nil, want parse error")
	}
}

func TestRunWritesSpecAndSeedsQueue(t *testing.T) {
	hasGit(t)
	dir := t.TempDir()
	ws := workspace.New(filepath.Join(dir, "workspace"))

	db, err := store.Open(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	q := queue.New(db, filepath.Join(dir, "logs"))

	c := &fakeCompleter{response: `[{"title":"Scaffold","description":"setup","priority":1,"depends_on":[]}]`}

	tasks, err := Run(context.Background(), c, ws, q, "build a todo app")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Run() returned %d tasks, want 1", len(tasks))
	}

	spec, found, err := ws.ReadFromTrunk("SPEC.md")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(spec) != "build a todo app" {
		t.Errorf("SPEC.md = %q, found=%v, want 'build a todo app'", spec, found)
	}

	ready, err := q.Ready()
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 1 {
		t.Fatalf("queue has %d ready tasks, want 1", len(ready))
	}
}
