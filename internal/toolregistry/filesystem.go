package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/harrison/corerun/internal/filelock"
	"github.com/harrison/corerun/internal/fileutil"
	"github.com/harrison/corerun/internal/models"
)

// lockTimeout bounds how long filesystem.write waits on FileLockRegistry
// before reporting LockTimeout, per the 30s default the registry contract
// calls for.
const lockTimeout = 30 * time.Second

// ReadTool implements filesystem.read: no locking, no side effects.
type ReadTool struct{}

func (ReadTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "filesystem.read",
		Description: "Read the full text content of a file at the given path.",
		InputSchema: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
	}
}

func (ReadTool) Call(_ context.Context, input []byte) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("filesystem.read: bad arguments: %w", err)
	}
	content, err := os.ReadFile(args.Path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("filesystem.read: not found: %s", args.Path)
	}
	if err != nil {
		return "", fmt.Errorf("filesystem.read: %w", err)
	}
	return string(content), nil
}

// WriteTool implements filesystem.write: exclusive FileLock for the whole
// write, atomic rename so concurrent readers never see a partial file, and a
// LockTimeout error if the lock isn't free within lockTimeout.
type WriteTool struct {
	Locks *filelock.Registry
}

func NewWriteTool(locks *filelock.Registry) *WriteTool {
	return &WriteTool{Locks: locks}
}

func (WriteTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "filesystem.write",
		Description: "Write content to a file at the given path, replacing it atomically.",
		InputSchema: `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`,
	}
}

func (w *WriteTool) Call(ctx context.Context, input []byte) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("filesystem.write: bad arguments: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var written int
	err := w.Locks.WriteLocked(lockCtx, args.Path, actorFrom(ctx), func() error {
		if err := filelock.AtomicWrite(args.Path, []byte(args.Content)); err != nil {
			return err
		}
		written = len(args.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("filesystem.write: LockTimeout or write failure on %s: %w", args.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", written, args.Path), nil
}

// ListTool implements filesystem.list: no locking, recursive directory scan
// delegating to fileutil's scanner.
type ListTool struct{}

func (ListTool) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "filesystem.list",
		Description: "List files under a directory path.",
		InputSchema: `{"type":"object","properties":{"path":{"type":"string"},"recursive":{"type":"boolean"}},"required":["path"]}`,
	}
}

func (ListTool) Call(_ context.Context, input []byte) (string, error) {
	var args struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("filesystem.list: bad arguments: %w", err)
	}
	result, err := fileutil.ScanDirectory(args.Path, fileutil.ScanOptions{
		Recursive:   args.Recursive,
		ExcludeDirs: []string{".git", "node_modules", "vendor"},
	})
	if err != nil {
		return "", fmt.Errorf("filesystem.list: %w", err)
	}
	out, err := json.Marshal(result.Files)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
