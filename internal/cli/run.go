package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentswarm/swarm/internal/logging"
	"github.com/agentswarm/swarm/internal/supervisor"
)

var specFile string

func init() {
	runCmd.Flags().StringVar(&specFile, "spec", "", "Path to a spec file (overrides the positional project description)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [project description]",
	Short: "Plan a project spec into tasks and run the swarm until it drains",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := resolveSpec(args)
		if err != nil {
			return err
		}

		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}

		db, q, ws, err := openRuntime(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := q.Clear(); err != nil {
			return fmt.Errorf("clearing queue for new run: %w", err)
		}

		var absConfigPath string
		if configPath != "" {
			absConfigPath, err = filepath.Abs(configPath)
			if err != nil {
				return err
			}
		}

		log := logging.New(os.Stderr, "supervisor")
		llmClient := newLLMClient(cfg, cfg.LLM.Model)
		sup := supervisor.New(cfg, absConfigPath, db, q, ws, llmClient, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\nreceived interrupt, draining fleet...")
			cancel()
		}()

		projectName := projectNameFrom(spec)
		archivePath, stats, err := sup.Run(ctx, projectName, spec)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		fmt.Printf("delivery archive: %s\n", archivePath)
		if stats.Failed > 0 {
			return fmt.Errorf("%d task(s) failed", stats.Failed)
		}
		return nil
	},
}

// resolveSpec reads the spec from --spec file if given, otherwise joins
// the positional arguments into the project description, matching the
// prototype's two invocation styles.
func resolveSpec(args []string) (string, error) {
	if specFile != "" {
		data, err := os.ReadFile(specFile)
		if err != nil {
			return "", fmt.Errorf("reading spec file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("usage: swarm run \"<project description>\" (or --spec SPEC.md)")
	}
	joined := args[0]
	for _, a := range args[1:] {
		joined += " " + a
	}
	return joined, nil
}

func projectNameFrom(spec string) string {
	if len(spec) > 30 {
		return spec[:30]
	}
	return spec
}
