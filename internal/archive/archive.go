// Package archive packages a task's written files into a per-task
// tar.gz, reading file contents from the workspace's trunk object store
// rather than the working directory, so concurrent branch checkouts by
// other workers never race with packaging.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
)

// Reader is the subset of workspace.Guard that archive needs, kept
// narrow so this package doesn't import workspace directly.
type Reader interface {
	ReadFromTrunk(path string) (content []byte, found bool, err error)
}

// Write builds outputsDir/name.tar.gz containing every path in paths,
// fetched via reader.ReadFromTrunk. Paths absent from trunk (e.g. a file
// the worker wrote but whose merge was later abandoned) are silently
// skipped rather than failing the whole archive.
func Write(reader Reader, outputsDir, name string, paths []string) (string, error) {
	if err := os.MkdirAll(outputsDir, 0755); err != nil {
		return "", fmt.Errorf("creating outputs directory: %w", err)
	}

	archivePath := filepath.Join(outputsDir, name+".tar.gz")
	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive %s: %w", archivePath, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, p := range paths {
		content, found, err := reader.ReadFromTrunk(p)
		if err != nil {
			return "", fmt.Errorf("reading %s from trunk: %w", p, err)
		}
		if !found {
			continue
		}
		hdr := &tar.Header{
			Name: p,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("writing tar header for %s: %w", p, err)
		}
		if _, err := tw.Write(content); err != nil {
			return "", fmt.Errorf("writing tar content for %s: %w", p, err)
		}
	}

	return archivePath, nil
}
