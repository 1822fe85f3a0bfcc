package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/models"
)

// GitCommitTool implements git.commit: it takes the same path lock
// filesystem.write uses, so a commit can never observe (or race with) a
// concurrent in-flight write to the file it's committing. Invocation follows
// the teacher's exec.CommandContext + clean-env pattern used to shell out to
// the claude CLI, pointed at git instead.
type GitCommitTool struct {
	Locks *filelock.Registry
	Actor string
}

func NewGitCommitTool(locks *filelock.Registry, actor string) *GitCommitTool {
	return &GitCommitTool{Locks: locks, Actor: actor}
}

func (GitCommitTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "git.commit",
		Description: "Stage and commit a single file with the given message; returns the commit id.",
		InputSchema: `{"type":"object","properties":{"path":{"type":"string"},"message":{"type":"string"}},"required":["path","message"]}`,
	}
}

func (g *GitCommitTool) Call(ctx context.Context, input []byte) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("git.commit: bad arguments: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var commitID string
	err := g.Locks.WriteLocked(lockCtx, args.Path, g.Actor, func() error {
		dir := filepath.Dir(args.Path)

		addCmd := exec.CommandContext(ctx, "git", "-C", dir, "add", filepath.Base(args.Path))
		if out, err := addCmd.CombinedOutput(); err != nil {
			return fmt.Errorf("git add failed: %w (%s)", err, strings.TrimSpace(string(out)))
		}

		commitCmd := exec.CommandContext(ctx, "git", "-C", dir, "commit", "-m", args.Message, "--", filepath.Base(args.Path))
		out, err := commitCmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("git commit failed: %w (%s)", err, strings.TrimSpace(string(out)))
		}

		revCmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
		revCmd.Env = nil
		revOut, err := revCmd.Output()
		if err != nil {
			return fmt.Errorf("git rev-parse failed: %w", err)
		}
		commitID = strings.TrimSpace(string(revOut))
		return nil
	})
	if err != nil {
		return "", err
	}
	return commitID, nil
}
