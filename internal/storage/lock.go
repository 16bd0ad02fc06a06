package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"
)

// LockFileName is the instance lock kept in the logs root.
const LockFileName = ".moly.lock"

// ErrInstanceRunning is returned when another process holds the instance lock.
var ErrInstanceRunning = errors.New("another instance is already recording in this logs root")

// InstanceLock is an exclusive lock on a logs root. While it is held no
// other process can start or resume a session there, so a session found by
// the scanner is never one that is still being written.
type InstanceLock struct {
	path       string
	file       *os.File
	InstanceID string
}

// AcquireInstanceLock takes a non-blocking exclusive flock on
// <logsRoot>/.moly.lock and records the pid and a fresh instance ID in it.
func AcquireInstanceLock(logsRoot string) (*InstanceLock, error) {
	if err := os.MkdirAll(logsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs root: %w", err)
	}
	path := filepath.Join(logsRoot, LockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrInstanceRunning
		}
		return nil, fmt.Errorf("acquiring instance lock: %w", err)
	}

	id := uuid.New().String()
	content := strconv.Itoa(os.Getpid()) + "\n" + id + "\n"
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(content), 0)
	}

	return &InstanceLock{path: path, file: f, InstanceID: id}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release drops the lock. It is safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("releasing instance lock: %w", err)
	}
	return nil
}
