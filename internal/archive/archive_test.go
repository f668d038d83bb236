package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

type fakeReader struct {
	files map[string][]byte
}

func (f *fakeReader) ReadFromTrunk(path string) ([]byte, bool, error) {
	content, ok := f.files[path]
	return content, ok, nil
}

func TestWriteProducesReadableArchive(t *testing.T) {
	reader := &fakeReader{files: map[string][]byte{
		"a.txt":       []byte("hello"),
		"sub/b.txt":   []byte("world"),
		"missing.txt": nil,
	}}
	delete(reader.files, "missing.txt") // not found, not empty

	outDir := t.TempDir()
	path, err := Write(reader, outDir, "task-1-worker-1-20260730T000000Z", []string{"a.txt", "sub/b.txt", "missing.txt"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	tr := tar.NewReader(gz)

	got := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		buf := make([]byte, hdr.Size)
		if _, err := tr.Read(buf); err != nil && hdr.Size > 0 {
			// tar.Reader.Read can return io.EOF with a full read; ignore.
		}
		got[hdr.Name] = string(buf)
	}

	if got["a.txt"] != "hello" {
		t.Errorf("a.txt content = %q, want hello", got["a.txt"])
	}
	if got["sub/b.txt"] != "world" {
		t.Errorf("sub/b.txt content = %q, want world", got["sub/b.txt"])
	}
	if _, ok := got["missing.txt"]; ok {
		t.Error("missing.txt should not be in the archive (not found at trunk)")
	}
}

func TestWriteCreatesOutputsDir(t *testing.T) {
	reader := &fakeReader{files: map[string][]byte{"a.txt": []byte("x")}}
	outDir := filepath.Join(t.TempDir(), "nested", "outputs")

	path, err := Write(reader, outDir, "archive-name", []string{"a.txt"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("archive not created at %s: %v", path, err)
	}
}
