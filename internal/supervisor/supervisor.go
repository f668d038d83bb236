// Package supervisor drives one end-to-end run: plan a spec into tasks,
// grow a worker fleet until the queue drains, then reconcile and package
// the finished workspace into a delivery archive.
package supervisor

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentswarm/swarm/internal/config"
	"github.com/agentswarm/swarm/internal/llm"
	"github.com/agentswarm/swarm/internal/planner"
	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/reconciler"
	"github.com/agentswarm/swarm/internal/store"
	"github.com/agentswarm/swarm/internal/workspace"
)

// pollInterval is how often the fleet loop checks queue stats and
// reconciles running worker processes.
const pollInterval = 5 * time.Second

// Supervisor owns one run's workspace, queue, worker fleet, and
// background reconciler.
type Supervisor struct {
	Cfg        *config.Config
	ConfigPath string // re-exec'd worker processes need this to reload settings
	Store      *store.Store
	Queue      *queue.Queue
	Workspace  *workspace.Guard
	LLM        *llm.Client
	Log        zerolog.Logger

	// runningWorkers are spawned via re-exec of this binary in "worker"
	// subcommand mode, mirroring the fleet-of-processes model a Python
	// multiprocessing pool gives for free. Each entry's wait goroutine
	// reports exit on finished so the fleet loop never blocks on Wait.
	runningWorkers map[int]*exec.Cmd
	finished       chan int
	totalSpawned   int
}

// New builds a Supervisor from already-opened dependencies.
func New(cfg *config.Config, configPath string, db *store.Store, q *queue.Queue, ws *workspace.Guard, llmClient *llm.Client, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		Cfg:            cfg,
		ConfigPath:     configPath,
		Store:          db,
		Queue:          q,
		Workspace:      ws,
		LLM:            llmClient,
		Log:            log,
		runningWorkers: make(map[int]*exec.Cmd),
		finished:       make(chan int, 64),
	}
}

// Run executes a complete swarm run against spec: plan, spawn/harvest
// workers until quiescent, reconcile, package the final archive. The
// returned Stats reflects the queue at completion so the caller can
// decide its own exit code — Run itself returns a non-nil error only
// for a failure to plan, drive, or package, not for individual failed
// tasks (those are a normal, recorded outcome of a run).
func (s *Supervisor) Run(ctx context.Context, projectName, spec string) (archivePath string, stats queue.Stats, err error) {
	startTime := time.Now()

	if err := s.Workspace.InitIfAbsent(); err != nil {
		return "", queue.Stats{}, fmt.Errorf("initializing workspace: %w", err)
	}

	s.Log.Info().Msg("phase 1: planning")
	tasks, err := planner.Run(ctx, s.LLM, s.Workspace, s.Queue, spec)
	if err != nil {
		return "", queue.Stats{}, fmt.Errorf("planning: %w", err)
	}
	if err := s.Store.InsertRunMeta(projectName, spec, len(tasks)); err != nil {
		return "", queue.Stats{}, fmt.Errorf("recording run metadata: %w", err)
	}
	s.Log.Info().Int("tasks", len(tasks)).Msg("planning complete")

	var llmCompleter reconciler.Completer
	if s.Cfg.Settings.Reconciler.LLMAnalysis {
		llmCompleter = s.LLM
	}
	rec := reconciler.New(s.Store, s.Queue, s.Workspace.Dir(), s.Cfg.Settings.WorkerTimeout.Duration(), llmCompleter, s.Log)
	reconcilerCtx, stopReconciler := context.WithCancel(ctx)
	reconcilerDone := make(chan struct{})
	go func() {
		rec.Run(reconcilerCtx, s.Cfg.Settings.Reconciler.Interval.Duration())
		close(reconcilerDone)
	}()

	s.Log.Info().Msg("phase 2: execution")
	if err := s.driveFleet(ctx); err != nil {
		stopReconciler()
		return "", queue.Stats{}, err
	}
	stopReconciler()
	<-reconcilerDone
	// Run performs no sweep of its own on cancellation, and waiting on
	// reconcilerDone lets any in-flight background sweep finish first, so
	// the explicit RunOnce below is the only pass still running and is
	// guaranteed complete before packaging.

	s.Log.Info().Msg("final reconciliation sweep")
	rec.RunOnce(ctx)

	stats, err = s.Queue.Stats()
	if err != nil {
		return "", queue.Stats{}, fmt.Errorf("reading final stats: %w", err)
	}
	status := "complete"
	if stats.Failed > 0 || stats.FixNeeded > 0 {
		status = "complete_with_errors"
	}
	if err := s.Store.UpdateRunMeta(stats.Done, stats.Failed, status); err != nil {
		s.Log.Error().Err(err).Msg("failed to update run_meta")
	}

	s.Log.Info().Int("done", stats.Done).Int("failed", stats.Failed).Int("total", stats.Total).
		Dur("elapsed", time.Since(startTime).Round(time.Second)).Msg("run complete")

	archivePath, err = s.packageFinalDelivery(projectName, startTime, time.Now(), stats)
	if err != nil {
		return "", queue.Stats{}, err
	}
	return archivePath, stats, nil
}

// driveFleet spawns worker processes up to MaxWorkers while pending work
// remains, harvests finished ones, and returns once the queue is
// quiescent (no pending and no running tasks).
func (s *Supervisor) driveFleet(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		stats, err := s.Queue.Stats()
		if err != nil {
			return fmt.Errorf("reading queue stats: %w", err)
		}
		if stats.Quiescent() {
			s.reapAll()
			return nil
		}

		s.reapFinished()

		slots := s.Cfg.Settings.MaxWorkers - len(s.runningWorkers)
		if slots > 0 && stats.Pending > 0 {
			toSpawn := slots
			if stats.Pending < toSpawn {
				toSpawn = stats.Pending
			}
			for i := 0; i < toSpawn; i++ {
				if err := s.spawnWorker(); err != nil {
					s.Log.Error().Err(err).Msg("failed to spawn worker")
				}
			}
		}

		s.Log.Info().Int("workers", len(s.runningWorkers)).Int("done", stats.Done).
			Int("pending", stats.Pending).Int("running", stats.Running).Msg("fleet status")

		select {
		case <-ctx.Done():
			// A cancellation (e.g. SIGINT) still drains in-flight workers
			// and falls through to final reconciliation and packaging,
			// rather than aborting the run with nothing delivered.
			s.reapAll()
			return nil
		case <-ticker.C:
		}
	}
}

// spawnWorker re-execs this binary in worker subcommand mode, one OS
// process per concurrent worker so a stuck LLM call or syntax checker
// can never block its siblings.
func (s *Supervisor) spawnWorker() error {
	s.totalSpawned++
	workerID := fmt.Sprintf("worker-%d", s.totalSpawned)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	args := []string{"worker", "--id", workerID}
	if s.ConfigPath != "" {
		args = append(args, "--config", s.ConfigPath)
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", workerID, err)
	}

	pid := cmd.Process.Pid
	s.runningWorkers[pid] = cmd
	go func() {
		_ = cmd.Wait()
		s.finished <- pid
	}()

	s.Log.Info().Str("worker_id", workerID).Int("pid", pid).Msg("spawned worker")
	return nil
}

// reapFinished drains every pid reported on s.finished since the last
// poll without blocking on workers still running.
func (s *Supervisor) reapFinished() {
	for {
		select {
		case pid := <-s.finished:
			delete(s.runningWorkers, pid)
		default:
			return
		}
	}
}

// reapAll waits for every still-running worker to exit, used once the
// queue goes quiescent so the final reconciliation sweep never races a
// worker's last commit.
func (s *Supervisor) reapAll() {
	for len(s.runningWorkers) > 0 {
		pid := <-s.finished
		delete(s.runningWorkers, pid)
	}
}

// packageFinalDelivery snapshots the entire workspace (excluding .git
// internals) plus a manifest.txt into one tar.gz under OutputsDir.
func (s *Supervisor) packageFinalDelivery(projectName string, start, end time.Time, stats queue.Stats) (string, error) {
	outputsDir := s.Cfg.Settings.OutputsDir
	if err := os.MkdirAll(outputsDir, 0755); err != nil {
		return "", fmt.Errorf("creating outputs directory: %w", err)
	}

	timestamp := end.UTC().Format("20060102T150405Z")
	safeName := sanitizeName(projectName)
	archiveName := fmt.Sprintf("%s-final-%s.tar.gz", safeName, timestamp)
	archivePath := filepath.Join(outputsDir, archiveName)

	manifest := fmt.Sprintf(
		"project: %s\ntask_count: %d\ntasks_done: %d\ntasks_failed: %d\nworkers_used: %d\nstart_time: %s\nend_time: %s\nduration_seconds: %d\n",
		projectName, stats.Total, stats.Done, stats.Failed, s.totalSpawned,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), int(end.Sub(start).Seconds()),
	)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive %s: %w", archivePath, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	manifestBytes := []byte(manifest)
	if err := tw.WriteHeader(&tar.Header{Name: "manifest.txt", Mode: 0644, Size: int64(len(manifestBytes))}); err != nil {
		return "", fmt.Errorf("writing manifest header: %w", err)
	}
	if _, err := tw.Write(manifestBytes); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	if err := addWorkspaceFiles(tw, s.Workspace.Dir()); err != nil {
		return "", fmt.Errorf("packaging workspace: %w", err)
	}

	return archivePath, nil
}

// addWorkspaceFiles walks dir and tars every regular file, skipping .git
// internals — the delivery archive is the project's files, not its
// version-control history.
func addWorkspaceFiles(tw *tar.Writer, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(rel, ".git"+string(filepath.Separator)) || rel == ".git" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		if err := tw.WriteHeader(&tar.Header{Name: rel, Mode: 0644, Size: int64(len(content))}); err != nil {
			return fmt.Errorf("writing header for %s: %w", rel, err)
		}
		_, err = tw.Write(content)
		return err
	})
}

// sanitizeName builds a filesystem-safe archive name prefix from a
// project description, matching the prototype's 30-char slug.
func sanitizeName(projectName string) string {
	name := projectName
	if len(name) > 30 {
		name = name[:30]
	}
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		return "project"
	}
	return name
}
