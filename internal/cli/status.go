package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/store"
)

var (
	statusFollow   bool
	statusInterval float64
)

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Live-update status (like watch)")
	statusCmd.Flags().Float64VarP(&statusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every task in the queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}

		db, q, _, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if statusFollow {
			return followStatus(db, q)
		}
		return renderStatus(os.Stdout, db, q)
	},
}

func followStatus(db *store.Store, q *queue.Queue) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(statusInterval * float64(time.Second))
	var lastOutput string

	for {
		var buf bytes.Buffer
		if err := renderStatus(&buf, db, q); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		output := buf.String()

		if output != lastOutput {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Every %.1fs: swarm status\n\n", statusInterval)
			fmt.Print(output)
			lastOutput = output
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

func renderStatus(w io.Writer, db *store.Store, q *queue.Queue) error {
	stats, err := q.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Queue Summary")
	fmt.Fprintln(w, "──────────────────────────────────────")
	fmt.Fprintf(w, "  total: %d  pending: %d  running: %d  done: %d  failed: %d  fix_needed: %d  replaced: %d\n\n",
		stats.Total, stats.Pending, stats.Running, stats.Done, stats.Failed, stats.FixNeeded, stats.Replaced)

	tasks, err := db.AllTasks()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Tasks")
	fmt.Fprintln(w, "──────────────────────────────────────")
	for _, t := range tasks {
		symbol, color := statusDisplay(t.Status)
		worker := t.AssignedWorker.String
		if worker == "" {
			worker = "-"
		}
		fmt.Fprintf(w, "  %s%s%s  %-24s  %-11s  retries=%d  worker=%s  %s\n",
			color, symbol, ansiReset, t.TaskID, t.Status, t.Retries, worker, t.Title)
	}

	return nil
}
