package fileutil

import "path/filepath"

// SwarmSubdir builds a path to a subdirectory within a workspace's .swarm
// control directory.
func SwarmSubdir(workspaceDir, subdir string) string {
	return filepath.Join(workspaceDir, ".swarm", subdir)
}

// SwarmDir returns the .swarm control directory path for a workspace.
func SwarmDir(workspaceDir string) string {
	return filepath.Join(workspaceDir, ".swarm")
}

// TaskLogPath returns the per-task sidecar log file path under logsDir.
func TaskLogPath(logsDir, taskID string) string {
	return filepath.Join(logsDir, taskID+".log")
}
