package cli

import (
	"fmt"
	"os"

	"github.com/agentswarm/swarm/internal/config"
	"github.com/agentswarm/swarm/internal/llm"
	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/store"
	"github.com/agentswarm/swarm/internal/workspace"
)

// loadAndValidateConfig loads a config file and validates it, printing
// errors to stderr. An empty path runs on built-in defaults plus
// environment overrides.
func loadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return nil, err
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	return cfg, nil
}

// openRuntime wires up the store, queue, and workspace guard a swarm run,
// status check, or reset shares.
func openRuntime(cfg *config.Config) (*store.Store, *queue.Queue, *workspace.Guard, error) {
	db, err := store.Open(cfg.Settings.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening task store: %w", err)
	}
	q := queue.New(db, cfg.Settings.LogsDir)
	ws := workspace.New(cfg.Settings.WorkspaceDir)
	return db, q, ws, nil
}

// newLLMClient builds the shared chat-completions client every component
// that talks to the LLM endpoint uses, with model overridden per caller.
func newLLMClient(cfg *config.Config, model string) *llm.Client {
	if model == "" {
		model = cfg.LLM.Model
	}
	return llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, model)
}
