package lock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks/pdflow/internal/errors"
)

func TestAcquireRelease(t *testing.T) {
	ws := t.TempDir()
	l := NewFileLocker("alice@host1")

	require.NoError(t, l.Acquire(ws))
	assert.FileExists(t, filepath.Join(ws, FileName))

	locked, info, err := l.IsLocked(ws)
	require.NoError(t, err)
	require.True(t, locked)
	assert.Equal(t, "alice@host1", info.Owner)
	assert.Equal(t, os.Getpid(), info.PID)

	require.NoError(t, l.Release(ws))
	locked, _, err = l.IsLocked(ws)
	require.NoError(t, err)
	assert.False(t, locked)

	// Releasing again is fine.
	require.NoError(t, l.Release(ws))
}

func TestAcquireConflict(t *testing.T) {
	ws := t.TempDir()
	alice := NewFileLocker("alice@host1")
	bob := NewFileLocker("bob@host2")

	require.NoError(t, alice.Acquire(ws))

	err := bob.Acquire(ws)
	require.Error(t, err)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeWorkspaceConflict, fe.Code)
	assert.Contains(t, fe.Why, "alice@host1")
}

func TestAcquireHeldBySameLockerConflicts(t *testing.T) {
	ws := t.TempDir()
	l := NewFileLocker("alice@host1")
	require.NoError(t, l.Acquire(ws))

	// Two concurrent runs in one process share the locker and the owner
	// identity. The second run must not slide under the first.
	err := l.Acquire(ws)
	require.Error(t, err)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeWorkspaceConflict, fe.Code)

	// Releasing frees the workspace for the next run.
	require.NoError(t, l.Release(ws))
	require.NoError(t, l.Acquire(ws))
}

func TestAcquireLeftoverOwnLockIsReclaimed(t *testing.T) {
	ws := t.TempDir()
	l := NewFileLocker("alice@host1")
	require.NoError(t, l.Acquire(ws))

	// Simulate a restart of this process: the lock file survives with our
	// pid, but nothing in-process holds the workspace anymore.
	fresh := NewFileLocker("alice@host1")
	require.NoError(t, fresh.Acquire(ws))
	require.NoError(t, fresh.Release(ws))
}

func TestStaleTakeover(t *testing.T) {
	ws := t.TempDir()
	alice := NewFileLocker("alice@host1")
	require.NoError(t, alice.Acquire(ws))

	// Age the lock past its TTL with a dead pid.
	lk, err := alice.readLock(ws)
	require.NoError(t, err)
	lk.Heartbeat = time.Now().Add(-2 * DefaultTTL)
	lk.PID = 0
	require.NoError(t, alice.writeLock(ws, lk))

	bob := NewFileLocker("bob@host2")
	require.NoError(t, bob.Acquire(ws))

	locked, info, err := bob.IsLocked(ws)
	require.NoError(t, err)
	require.True(t, locked)
	assert.Equal(t, "bob@host2", info.Owner)
}

func TestDeadPIDIsStale(t *testing.T) {
	lk := &Lock{
		Owner:     "alice@host1",
		Heartbeat: time.Now(),
		TTL:       DefaultTTL.String(),
		// No realistic system reuses pid this high immediately.
		PID: 1 << 22,
	}
	assert.True(t, lk.IsStale())

	lk.PID = os.Getpid()
	assert.False(t, lk.IsStale())
}

func TestHeartbeat(t *testing.T) {
	ws := t.TempDir()
	l := NewFileLocker("alice@host1")
	require.NoError(t, l.Acquire(ws))

	before, err := l.readLock(ws)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Heartbeat(ws))

	after, err := l.readLock(ws)
	require.NoError(t, err)
	assert.True(t, after.Heartbeat.After(before.Heartbeat))

	// Another owner cannot heartbeat our lock.
	bob := NewFileLocker("bob@host2")
	require.Error(t, bob.Heartbeat(ws))
}

func TestNoOpLocker(t *testing.T) {
	var l Locker = NoOpLocker{}
	require.NoError(t, l.Acquire("/anywhere"))
	locked, _, err := l.IsLocked("/anywhere")
	require.NoError(t, err)
	assert.False(t, locked)
	require.NoError(t, l.Release("/anywhere"))
}
