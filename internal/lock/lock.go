// Package lock provides per-workspace mutual exclusion. Only one run may
// operate on a given stage workspace at a time; the lock lives as lock.yaml
// inside the workspace so concurrent pdflow processes on a shared filesystem
// see each other.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabworks/pdflow/internal/errors"
)

// FileName is the name of the lock file inside a workspace.
const FileName = "lock.yaml"

// DefaultTTL is how long a lock survives without a heartbeat.
const DefaultTTL = 60 * time.Second

// DefaultHeartbeatInterval drives the heartbeat loop.
const DefaultHeartbeatInterval = 10 * time.Second

// Lock is the on-disk lock state.
type Lock struct {
	Owner     string    `yaml:"owner"`
	Acquired  time.Time `yaml:"acquired"`
	Heartbeat time.Time `yaml:"heartbeat"`
	TTL       string    `yaml:"ttl"`
	PID       int       `yaml:"pid"`
}

// TTLDuration parses the TTL string, falling back to DefaultTTL.
func (l *Lock) TTLDuration() time.Duration {
	d, err := time.ParseDuration(l.TTL)
	if err != nil {
		return DefaultTTL
	}
	return d
}

// IsStale reports whether the lock can be taken over: the heartbeat has
// outlived its TTL, or the holding process on this host is gone.
func (l *Lock) IsStale() bool {
	if time.Since(l.Heartbeat) > l.TTLDuration() {
		return true
	}
	return l.PID > 0 && !processExists(l.PID)
}

// Info describes an active lock holder.
type Info struct {
	Owner     string
	Acquired  time.Time
	Heartbeat time.Time
	PID       int
}

// Locker guards stage workspaces.
type Locker interface {
	// Acquire locks a workspace directory. Returns a workspace conflict
	// error when another live holder has it.
	Acquire(workspace string) error

	// Release removes our lock from the workspace.
	Release(workspace string) error

	// Heartbeat refreshes our lock's heartbeat timestamp.
	Heartbeat(workspace string) error

	// IsLocked reports whether the workspace has a live lock.
	IsLocked(workspace string) (bool, *Info, error)
}

// NoOpLocker disables coordination. Used when locking is turned off in
// config and in tests that do not care about it.
type NoOpLocker struct{}

func (NoOpLocker) Acquire(string) error                 { return nil }
func (NoOpLocker) Release(string) error                 { return nil }
func (NoOpLocker) Heartbeat(string) error               { return nil }
func (NoOpLocker) IsLocked(string) (bool, *Info, error) { return false, nil, nil }

// FileLocker implements Locker with lock.yaml files. Live acquisitions are
// additionally tracked in-process, so concurrent runs sharing one FileLocker
// (the async job pool) exclude each other even though they share the same
// on-disk owner identity.
type FileLocker struct {
	owner string
	ttl   time.Duration
	mu    sync.Mutex
	held  map[string]bool
}

// NewFileLocker creates a FileLocker for the given owner identity
// (user@machine).
func NewFileLocker(owner string) *FileLocker {
	return &FileLocker{owner: owner, ttl: DefaultTTL, held: make(map[string]bool)}
}

// DefaultOwner derives the user@host lock owner identity.
func DefaultOwner() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return user + "@" + host
}

func lockPath(workspace string) string {
	return filepath.Join(workspace, FileName)
}

func (l *FileLocker) readLock(workspace string) (*Lock, error) {
	data, err := os.ReadFile(lockPath(workspace))
	if err != nil {
		return nil, err
	}
	var lk Lock
	if err := yaml.Unmarshal(data, &lk); err != nil {
		return nil, fmt.Errorf("parse lock file: %w", err)
	}
	return &lk, nil
}

func (l *FileLocker) writeLock(workspace string, lk *Lock) error {
	data, err := yaml.Marshal(lk)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	path := lockPath(workspace)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename lock file: %w", err)
	}
	return nil
}

// Acquire locks the workspace, taking over stale locks. A workspace this
// locker already holds live cannot be acquired again until it is released;
// the same goes for a live lock written by a different process, even one
// with the same owner identity.
func (l *FileLocker) Acquire(workspace string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[workspace] {
		return errors.ErrWorkspaceConflict(workspace, l.owner)
	}

	existing, err := l.readLock(workspace)
	if err == nil {
		if !existing.IsStale() && (existing.Owner != l.owner || existing.PID != os.Getpid()) {
			return errors.ErrWorkspaceConflict(workspace, existing.Owner)
		}
		// Stale and claimable, or a leftover from this process that was
		// never released cleanly.
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read lock: %w", err)
	}

	now := time.Now().UTC()
	if err := l.writeLock(workspace, &Lock{
		Owner:     l.owner,
		Acquired:  now,
		Heartbeat: now,
		TTL:       l.ttl.String(),
		PID:       os.Getpid(),
	}); err != nil {
		return err
	}
	l.held[workspace] = true
	return nil
}

// Release removes the lock if we own it. Releasing an absent lock is a
// no-op.
func (l *FileLocker) Release(workspace string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readLock(workspace)
	if os.IsNotExist(err) {
		delete(l.held, workspace)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}
	if existing.Owner != l.owner {
		return errors.ErrWorkspaceConflict(workspace, existing.Owner)
	}
	if err := os.Remove(lockPath(workspace)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	delete(l.held, workspace)
	return nil
}

// Heartbeat refreshes our heartbeat timestamp.
func (l *FileLocker) Heartbeat(workspace string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.readLock(workspace)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("lock not found for %s", workspace)
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if existing.Owner != l.owner {
		return errors.ErrWorkspaceConflict(workspace, existing.Owner)
	}
	existing.Heartbeat = time.Now().UTC()
	return l.writeLock(workspace, existing)
}

// IsLocked reports whether a live lock holds the workspace.
func (l *FileLocker) IsLocked(workspace string) (bool, *Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, err := l.readLock(workspace)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("read lock: %w", err)
	}
	if lk.IsStale() {
		return false, nil, nil
	}
	return true, &Info{
		Owner:     lk.Owner,
		Acquired:  lk.Acquired,
		Heartbeat: lk.Heartbeat,
		PID:       lk.PID,
	}, nil
}

// processExists probes a pid with signal 0.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// HeartbeatRunner refreshes a held lock in the background for the duration
// of a stage run.
type HeartbeatRunner struct {
	locker    Locker
	workspace string
	interval  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewHeartbeatRunner creates a heartbeat loop for a held lock.
func NewHeartbeatRunner(locker Locker, workspace string, interval time.Duration) *HeartbeatRunner {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatRunner{
		locker:    locker,
		workspace: workspace,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the heartbeat loop.
func (h *HeartbeatRunner) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				// Errors here just let the lock age toward staleness.
				_ = h.locker.Heartbeat(h.workspace)
			}
		}
	}()
}

// Stop ends the heartbeat loop and waits for it.
func (h *HeartbeatRunner) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}
