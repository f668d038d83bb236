package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentswarm/swarm/internal/logging"
	"github.com/agentswarm/swarm/internal/ratelimit"
	"github.com/agentswarm/swarm/internal/worker"
)

var workerID string

func init() {
	workerCmd.Flags().StringVar(&workerID, "id", "", "Worker identifier (required)")
	workerCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(workerCmd)
}

// workerCmd is never invoked directly by a user — the supervisor re-execs
// this binary with it to get one independent OS process per concurrent
// worker, so a single stuck LLM call or syntax checker can't block the
// rest of the fleet.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a single worker's claim loop (invoked by the supervisor)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}

		db, q, ws, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		statePath := filepath.Join(cfg.Settings.LogsDir, "api_rate_limit_state.json")
		limiter, err := ratelimit.New(statePath, cfg.Settings.RateLimitRPM, logging.NewWorker(workerID))
		if err != nil {
			return fmt.Errorf("building rate limiter: %w", err)
		}

		w := &worker.Worker{
			ID:         workerID,
			Queue:      q,
			Workspace:  ws,
			Limiter:    limiter,
			LLM:        newLLMClient(cfg, cfg.LLM.Model),
			OutputsDir: cfg.Settings.OutputsDir,
			TreeDepth:  cfg.Settings.TreeDepth,
			MaxRetries: cfg.Settings.MaxRetries,
			Log:        logging.NewWorker(workerID),
		}

		fmt.Fprintf(os.Stderr, "%s starting\n", workerID)
		return w.Run(context.Background())
	},
}
