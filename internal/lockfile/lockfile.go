// Package lockfile provides a PID-based mutual exclusion lock for the setup
// process. Unlike a purely advisory marker file, acquisition verifies the
// recorded owner is still alive before proceeding.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrHeld is returned when a live process already owns the lock.
var ErrHeld = errors.New("setup lock is held")

// HeldError carries the owning PID alongside ErrHeld.
type HeldError struct {
	PID int
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("setup lock is held by pid %d", e.PID)
}

func (e *HeldError) Is(target error) bool {
	return target == ErrHeld
}

// Lock is a file-based process lock.
type Lock struct {
	path     string
	acquired bool
}

// New returns an unacquired lock at the given path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock. A lock file owned by a live process fails with
// HeldError; a stale file left by a dead process is removed and taken over.
func (l *Lock) Acquire() error {
	if l.acquired {
		return nil
	}

	if _, err := os.Stat(l.path); err == nil {
		if owner, ok := l.readOwner(); ok && owner != os.Getpid() && pidAlive(owner) {
			return &HeldError{PID: owner}
		}
		// Stale or unreadable lock from a dead process.
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Lost the race to another starting instance.
			if owner, ok := l.readOwner(); ok {
				return &HeldError{PID: owner}
			}
			return ErrHeld
		}
		return fmt.Errorf("create lock file: %w", err)
	}

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		_ = file.Close()
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("close lock file: %w", err)
	}

	l.acquired = true
	return nil
}

// Release removes the lock file if this process acquired it. Safe to call
// multiple times.
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}
	l.acquired = false
	err := os.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Lock) readOwner() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
