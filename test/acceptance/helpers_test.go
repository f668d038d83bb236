package acceptance_test

import (
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/gomega"

	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/store"
)

// writeConfig materializes a swarm config file rooted at dir and returns its
// path. Every on-disk setting lives under dir so parallel specs never share
// state.
func writeConfig(dir string) string {
	body := fmt.Sprintf(`llm:
  base_url: "https://api.example.com/v1"
  api_key: "test-key"
  model: "test-model"
settings:
  max_workers: 2
  api_rate_limit_rpm: 10
  workspace_dir: %q
  logs_dir: %q
  db_path: %q
  outputs_dir: %q
`, filepath.Join(dir, "workspace"), filepath.Join(dir, "logs"), filepath.Join(dir, "db", "tasks.db"), filepath.Join(dir, "outputs"))

	path := filepath.Join(dir, "swarm.yaml")
	Expect(os.WriteFile(path, []byte(body), 0644)).To(Succeed())
	return path
}

// seedQueue opens the store directly (bypassing the CLI) so a spec can set up
// a known task graph before exercising read-only commands like status and viz.
func seedQueue(dir string) {
	dbPath := filepath.Join(dir, "db", "tasks.db")
	Expect(os.MkdirAll(filepath.Dir(dbPath), 0755)).To(Succeed())

	db, err := store.Open(dbPath)
	Expect(err).NotTo(HaveOccurred())
	defer db.Close()

	q := queue.New(db, filepath.Join(dir, "logs"))
	base, err := q.Add("scaffold the project layout", "create base directories", 5, nil)
	Expect(err).NotTo(HaveOccurred())
	_, err = q.Add("add the HTTP handler", "depends on scaffolding", 3, []string{base})
	Expect(err).NotTo(HaveOccurred())
}
