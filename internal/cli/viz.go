package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentswarm/swarm/internal/store"
)

func init() {
	rootCmd.AddCommand(vizCmd)
}

var vizCmd = &cobra.Command{
	Use:   "viz",
	Short: "Visualize the task dependency graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}

		db, _, _, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		tasks, err := db.AllTasks()
		if err != nil {
			return err
		}

		printGraph(tasks)
		return nil
	},
}

type vizNode struct {
	title      string
	status     string
	downstream []string
}

// printGraph renders dependency edges as a tree rooted at every task
// that depends on no other task in the queue, whatever the status of
// its dependencies, mirroring how a concern
// chain's watch graph prints from its external-branch roots.
func printGraph(tasks []store.Task) {
	nodes := make(map[string]*vizNode, len(tasks))
	hasDependency := make(map[string]bool)

	for _, t := range tasks {
		nodes[t.TaskID] = &vizNode{title: t.Title, status: t.Status}
	}
	for _, t := range tasks {
		var deps []string
		if t.DependsOn != "" {
			_ = json.Unmarshal([]byte(t.DependsOn), &deps)
		}
		for _, dep := range deps {
			if n, ok := nodes[dep]; ok {
				n.downstream = append(n.downstream, t.TaskID)
				hasDependency[t.TaskID] = true
			}
		}
	}

	var roots []string
	for _, t := range tasks {
		if !hasDependency[t.TaskID] {
			roots = append(roots, t.TaskID)
		}
	}

	for _, root := range roots {
		symbol, color := statusDisplay(nodes[root].status)
		fmt.Printf("%s%s%s [%s] %s\n", color, symbol, ansiReset, root, nodes[root].title)
		printBranch(nodes, root, "", true)
	}
}

func printBranch(nodes map[string]*vizNode, name string, prefix string, isLast bool) {
	n := nodes[name]
	for i, child := range n.downstream {
		childIsLast := i == len(n.downstream)-1
		connector := "├── "
		if childIsLast {
			connector = "└── "
		}

		cn := nodes[child]
		symbol, color := statusDisplay(cn.status)
		fmt.Printf("%s%s%s%s%s [%s] %s\n", prefix, connector, color, symbol, ansiReset, child, cn.title)

		childPrefix := prefix
		if childIsLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
		printBranch(nodes, child, childPrefix, childIsLast)
	}
}
