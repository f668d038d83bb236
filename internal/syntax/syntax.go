// Package syntax runs a best-effort syntax check on a written file based
// on its extension, streaming the checker subprocess's output through a
// pty so multi-line compiler diagnostics are captured the way a human
// watching a terminal would see them, not chopped up by pipe buffering.
package syntax

import (
	"bufio"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"
)

// checkers maps a file extension to the command that syntax-checks it.
// Extensions absent from this map pass unconditionally — an unsupported
// language is not grounds to fail a task.
var checkers = map[string][]string{
	".py":  {"python3", "-m", "py_compile"},
	".js":  {"node", "--check"},
	".ts":  {"node", "--check"},
	".jsx": {"node", "--check"},
	".tsx": {"node", "--check"},
	".sh":  {"bash", "-n"},
}

// Check runs the checker for path's extension (cwd rooted at workspaceDir)
// and returns a nil error if the file is syntactically valid, has no
// registered checker, or the checker binary itself isn't installed — a
// missing toolchain on the host should never fail a task that isn't in
// that language.
func Check(workspaceDir, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	base, ok := checkers[ext]
	if !ok {
		return nil
	}

	if _, err := exec.LookPath(base[0]); err != nil {
		return nil
	}

	args := append(append([]string{}, base[1:]...), path)
	cmd := exec.Command(base[0], args...)
	cmd.Dir = workspaceDir

	f, err := pty.Start(cmd)
	if err != nil {
		// Some environments (no controlling terminal, CI sandboxes) can't
		// allocate a pty; fall back to a plain pipe rather than skip the check.
		out, runErr := cmd.CombinedOutput()
		if runErr != nil {
			return fmt.Errorf("syntax error in %s: %s", path, strings.TrimSpace(string(out)))
		}
		return nil
	}
	defer f.Close()

	var output strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		output.WriteString(scanner.Text())
		output.WriteByte('\n')
	}
	// io.EOF from the pty master on child exit is expected, not an error.
	_ = scanner.Err()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("syntax error in %s: %s", path, strings.TrimSpace(output.String()))
	}
	return nil
}
