package supervisor

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentswarm/swarm/internal/config"
	"github.com/agentswarm/swarm/internal/queue"
	"github.com/agentswarm/swarm/internal/workspace"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a simple todo app", "a_simple_todo_app"},
		{"", "project"},
		{"path/with/slashes", "path_with_slashes"},
		{"this description is deliberately far longer than thirty characters", "this_description_is_deliberate"},
	}
	for _, c := range cases {
		if got := sanitizeName(c.in); got != c.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAddWorkspaceFilesSkipsGitInternals(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "README.md"), "hello")
	mustWrite(t, filepath.Join(dir, "src", "main.go"), "package main")
	mustWrite(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/trunk")
	mustWrite(t, filepath.Join(dir, ".git", "objects", "pack", "pack.idx"), "binary")

	archivePath := filepath.Join(t.TempDir(), "out.tar.gz")
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	if err := addWorkspaceFiles(tw, dir); err != nil {
		t.Fatalf("addWorkspaceFiles() error = %v", err)
	}
	tw.Close()
	gz.Close()
	f.Close()

	names := readTarNames(t, archivePath)
	if !names["README.md"] {
		t.Error("expected README.md in archive")
	}
	if !names[filepath.Join("src", "main.go")] {
		t.Error("expected src/main.go in archive")
	}
	for name := range names {
		if name == ".git" || strings.HasPrefix(name, ".git"+string(filepath.Separator)) {
			t.Errorf("did not expect .git internals in archive, got %q", name)
		}
	}
}

func TestPackageFinalDeliveryWritesManifestAndWorkspaceFiles(t *testing.T) {
	dir := t.TempDir()
	wsDir := filepath.Join(dir, "workspace")
	outputsDir := filepath.Join(dir, "outputs")
	mustWrite(t, filepath.Join(wsDir, "FEATURES.json"), "[]")

	cfg := config.Default()
	cfg.Settings.OutputsDir = outputsDir

	s := &Supervisor{
		Cfg:       cfg,
		Workspace: workspace.New(wsDir),
		Log:       zerolog.Nop(),
	}
	s.totalSpawned = 3

	start := time.Unix(0, 0)
	end := start.Add(90 * time.Second)
	stats := queue.Stats{Total: 4, Done: 3, Failed: 1}

	archivePath, err := s.packageFinalDelivery("demo project", start, end, stats)
	if err != nil {
		t.Fatalf("packageFinalDelivery() error = %v", err)
	}
	if filepath.Dir(archivePath) != outputsDir {
		t.Errorf("archive written to %q, want under %q", archivePath, outputsDir)
	}

	names := readTarNames(t, archivePath)
	if !names["manifest.txt"] {
		t.Error("expected manifest.txt in archive")
	}
	if !names["FEATURES.json"] {
		t.Error("expected FEATURES.json in archive")
	}
}

func TestReapFinishedDrainsOnlyAlreadyReportedExits(t *testing.T) {
	s := New(config.Default(), "", nil, nil, nil, nil, zerolog.Nop())
	s.runningWorkers[111] = nil
	s.runningWorkers[222] = nil
	s.finished <- 111

	s.reapFinished()

	if _, stillRunning := s.runningWorkers[111]; stillRunning {
		t.Error("expected pid 111 to be reaped")
	}
	if _, stillRunning := s.runningWorkers[222]; !stillRunning {
		t.Error("expected pid 222 to remain, nothing reported it finished")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readTarNames(t *testing.T, archivePath string) map[string]bool {
	t.Helper()
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()

	names := make(map[string]bool)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}
	return names
}
