//go:build !windows

package serialize

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/caramel-csf/caramel/internal/cerrors"
)

// fileLock holds an exclusive flock(2) on one file, acquired via
// golang.org/x/sys/unix.Flock — the same syscall
// calvinalkan-agent-task/internal/fs/lock.go wraps with its Locker
// type, simplified here to the single case the .csf writer needs: one
// known output path, locked for the duration of a single write.
type fileLock struct {
	f *os.File
}

// lockFile opens (creating if necessary) and exclusively locks path,
// blocking until the lock is available.
func lockFile(path string) (*fileLock, error) {
	return acquireLock(path, false)
}

// tryLockFile is lockFile's non-blocking counterpart: it acquires the
// lock immediately or returns cerrors.ErrWouldBlock if another process
// already holds it, the same LOCK_NB contention signal
// calvinalkan-agent-task/internal/fs/lock.go's TryLock maps to its own
// ErrWouldBlock.
func tryLockFile(path string) (*fileLock, error) {
	return acquireLock(path, true)
}

func acquireLock(path string, nonBlocking bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("serialize: opening lock target: %w", err)
	}

	how := unix.LOCK_EX
	if nonBlocking {
		how |= unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if nonBlocking && errors.Is(err, unix.EWOULDBLOCK) {
			return nil, cerrors.ErrWouldBlock
		}
		return nil, fmt.Errorf("serialize: flock: %w", err)
	}
	return &fileLock{f: f}, nil
}

// Close releases the lock and closes the underlying file.
func (l *fileLock) Close() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
