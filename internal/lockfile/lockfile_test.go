package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.lock")
	lock := New(path)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("lock file not written: %v", err)
	}
	want := fmt.Sprintf("%d\n", os.Getpid())
	if string(data) != want {
		t.Fatalf("lock content = %q, want %q", data, want)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lock file should be removed on release")
	}
	// Releasing twice is fine.
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release() error: %v", err)
	}
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.lock")

	first := New(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}
	t.Cleanup(func() { _ = first.Release() })

	// A second instance sees our own live PID as a foreign owner only when
	// the PIDs differ, so simulate a live foreign owner with the parent PID.
	foreign := os.Getppid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", foreign)), 0o644); err != nil {
		t.Fatal(err)
	}

	second := New(path)
	err := second.Acquire()
	if err == nil {
		t.Fatal("Acquire() should refuse a lock held by a live process")
	}
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	var held *HeldError
	if !errors.As(err, &held) || held.PID != foreign {
		t.Fatalf("expected HeldError with pid %d, got %v", foreign, err)
	}
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.lock")

	// PID far beyond pid_max on any reasonable system.
	if err := os.WriteFile(path, []byte("999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lock := New(path)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() should take over a stale lock, got: %v", err)
	}
	t.Cleanup(func() { _ = lock.Release() })

	data, _ := os.ReadFile(path)
	want := fmt.Sprintf("%d\n", os.Getpid())
	if string(data) != want {
		t.Fatalf("lock content = %q, want %q", data, want)
	}
}

func TestAcquireTakesOverGarbageLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.lock")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}

	lock := New(path)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() should replace an unreadable lock file, got: %v", err)
	}
	t.Cleanup(func() { _ = lock.Release() })
}
