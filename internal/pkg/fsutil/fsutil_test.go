package fsutil

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":2}`), 0o600))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(raw))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestInstanceLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotguard.lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	second, err := AcquireLock(path)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func stubAlive(t *testing.T, alive bool) {
	t.Helper()
	prev := processAlive
	processAlive = func(int) bool { return alive }
	t.Cleanup(func() { processAlive = prev })
}

func TestInstanceLockTakesOverDeadHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotguard.lock")
	// 上一个实例崩溃后留下的锁文件。
	require.NoError(t, os.WriteFile(path, []byte("4242"), 0o600))

	t.Run("holder still running", func(t *testing.T) {
		stubAlive(t, true)
		_, err := AcquireLock(path)
		require.ErrorIs(t, err, ErrLocked)
		assert.Contains(t, err.Error(), "4242")
	})

	t.Run("holder gone", func(t *testing.T) {
		stubAlive(t, false)
		l, err := AcquireLock(path)
		require.NoError(t, err)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(os.Getpid()), string(raw))
		require.NoError(t, l.Release())
	})
}

func TestInstanceLockReusedPidFromPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotguard.lock")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600))

	l, err := AcquireLock(path)
	require.NoError(t, err)
	defer l.Release()

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ErrLocked, "a lock held by this process is never taken over")
}

func TestInstanceLockEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotguard.lock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := AcquireLock(path)
	require.ErrorIs(t, err, ErrLocked, "a fresh empty file may be another instance mid-write")

	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))
	l, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestPidAliveSelf(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
}
