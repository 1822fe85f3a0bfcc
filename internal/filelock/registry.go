package filelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockTimeout is returned (wrapped) when a path isn't free before the
// caller's context deadline. Tools check errors.Is(err, ErrLockTimeout) to
// classify the failure as transient rather than fatal.
var ErrLockTimeout = errors.New("filelock: timed out waiting for lock")

// entry pairs the in-process mutex for a path with the cross-process advisory
// lock that guards the same path against other conductor/corerun instances.
// The in-process mutex is cheap and fair between goroutines in this binary;
// the flock-backed FileLock is only touched once the mutex is held, so two
// goroutines never race to create the same flock.Flock.
type entry struct {
	mu      sync.Mutex
	cross   *FileLock
	holder  string
	lockedAt time.Time
}

// Registry is the process-wide map of path -> lock state. Where
// DefaultFileLockManager (the teacher's in-process-only lock table) trusted a
// single process to own every write, Registry adds the cross-process layer so
// two conductor/corerun instances editing the same working tree still
// serialize correctly: the in-process mutex arbitrates between this
// process's own goroutines, and the flock call underneath arbitrates between
// processes.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) entryFor(path string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	if !ok {
		e = &entry{cross: NewFileLock(path + ".lock")}
		r.entries[path] = e
	}
	return e
}

// Acquire blocks until path is locked by the given holder or ctx is done.
// Deadline-bounded: pass a context with a deadline/timeout to avoid a stuck
// writer wedging a wave indefinitely. Returns a release function that must be
// called exactly once.
func (r *Registry) Acquire(ctx context.Context, path, holder string) (func(), error) {
	e := r.entryFor(path)

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine above still takes e.mu once it frees up; hand it
		// straight back so this abandoned attempt never holds the path.
		go func() {
			<-acquired
			e.mu.Unlock()
		}()
		return nil, fmt.Errorf("acquire %q: %w", path, ErrLockTimeout)
	}

	if err := e.cross.Lock(); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("filelock: cross-process lock %q: %w", path, err)
	}

	e.holder = holder
	e.lockedAt = time.Now()

	release := func() {
		e.holder = ""
		_ = e.cross.Unlock()
		e.mu.Unlock()
	}
	return release, nil
}

// TryAcquire attempts a non-blocking lock. Returns ok=false (no error) if the
// path is already held by someone else.
func (r *Registry) TryAcquire(path, holder string) (release func(), ok bool, err error) {
	e := r.entryFor(path)
	if !e.mu.TryLock() {
		return nil, false, nil
	}

	locked, lockErr := e.cross.TryLock()
	if lockErr != nil {
		e.mu.Unlock()
		return nil, false, fmt.Errorf("filelock: try cross-process lock %q: %w", path, lockErr)
	}
	if !locked {
		e.mu.Unlock()
		return nil, false, nil
	}

	e.holder = holder
	e.lockedAt = time.Now()
	release = func() {
		e.holder = ""
		_ = e.cross.Unlock()
		e.mu.Unlock()
	}
	return release, true, nil
}

// HolderOf returns the identity currently holding path, or "" if unlocked.
// For diagnostics, e.g. surfacing a stuck writer.
func (r *Registry) HolderOf(path string) string {
	r.mu.Lock()
	e, ok := r.entries[path]
	r.mu.Unlock()
	if !ok {
		return ""
	}
	return e.holder
}

// WriteLocked acquires path, runs fn, and releases regardless of fn's outcome.
// Most callers (the filesystem.write tool) should use this instead of
// Acquire/release directly.
func (r *Registry) WriteLocked(ctx context.Context, path, holder string, fn func() error) error {
	release, err := r.Acquire(ctx, path, holder)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
