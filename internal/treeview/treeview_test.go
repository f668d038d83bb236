package treeview

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildFiltersByDepth(t *testing.T) {
	dir := t.TempDir()
	paths := []string{"a.txt", "sub/b.txt", "sub/deep/c.txt"}

	got := Build(dir, paths, 2)

	want := []string{"a.txt", "sub/b.txt"}
	if len(got) != len(want) {
		t.Fatalf("Build() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Build()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildAppliesSwarmignore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".swarmignore"), []byte("*.log\nbuild/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	paths := []string{"a.txt", "debug.log", "build/out.txt"}

	got := Build(dir, paths, 3)

	for _, p := range got {
		if p == "debug.log" || p == "build/out.txt" {
			t.Errorf("Build() included ignored path %q", p)
		}
	}
	if len(got) != 1 || got[0] != "a.txt" {
		t.Errorf("Build() = %v, want just a.txt", got)
	}
}

func TestBuildWithoutSwarmignoreKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	paths := []string{"a.txt", "b.txt"}

	got := Build(dir, paths, 5)
	if len(got) != 2 {
		t.Errorf("Build() = %v, want both paths (no .swarmignore present)", got)
	}
}

func TestRenderEmptyPlaceholder(t *testing.T) {
	if got := Render(nil); got != "(empty)" {
		t.Errorf("Render(nil) = %q, want (empty)", got)
	}
}

func TestRenderJoinsWithNewlines(t *testing.T) {
	got := Render([]string{"a.txt", "b.txt"})
	want := "a.txt\nb.txt"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
