package command

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func TestRunCapturesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell tools")
	}

	runner := NewRunner()
	out, err := runner.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.Combined() != "hello" {
		t.Fatalf("Combined() = %q, want %q", out.Combined(), "hello")
	}
	if out.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", out.ExitCode)
	}
}

func TestRunTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell tools")
	}

	runner := NewRunner(WithTimeout(50 * time.Millisecond))
	_, err := runner.Run(context.Background(), "sleep", "5")
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix shell tools")
	}

	runner := NewRunner()
	out, err := runner.Run(context.Background(), "sh", "-c", "exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if out.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", out.ExitCode)
	}
}
