package instance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	ps "github.com/mitchellh/go-ps"
)

type mockProcess struct {
	pid        int
	executable string
}

func (m *mockProcess) Pid() int           { return m.pid }
func (m *mockProcess) PPid() int          { return 0 }
func (m *mockProcess) Executable() string { return m.executable }

// fakeProcesses swaps the process table and our own PID for the test.
func fakeProcesses(t *testing.T, self int, table map[int]string) {
	t.Helper()
	oldFind, oldPid := findProcessFunc, getpidFunc
	t.Cleanup(func() { findProcessFunc, getpidFunc = oldFind, oldPid })

	getpidFunc = func() int { return self }
	findProcessFunc = func(pid int) (ps.Process, error) {
		exe, ok := table[pid]
		if !ok {
			return nil, nil
		}
		return &mockProcess{pid: pid, executable: exe}, nil
	}
}

func TestAcquireAndRelease(t *testing.T) {
	fakeProcesses(t, 100, map[int]string{100: "wpbot"})
	path := filepath.Join(t.TempDir(), "run", "wpbot.lock")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "100|wpbot" {
		t.Fatalf("lock content = %q", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file still present: %v", err)
	}
}

func TestAcquireFailsWhileHolderAlive(t *testing.T) {
	fakeProcesses(t, 100, map[int]string{100: "wpbot", 55: "wpbot"})
	path := filepath.Join(t.TempDir(), "wpbot.lock")
	if err := os.WriteFile(path, []byte("55|wpbot"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "55|wpbot" {
		t.Fatalf("foreign lock was modified: %q", data)
	}
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	tests := []struct {
		name    string
		content string
		table   map[int]string
	}{
		{"dead process", "55|wpbot", map[int]string{100: "wpbot"}},
		{"pid reused by another program", "55|wpbot", map[int]string{100: "wpbot", 55: "nginx"}},
		{"garbage", "not a pid", map[int]string{100: "wpbot"}},
		{"empty", "", map[int]string{100: "wpbot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeProcesses(t, 100, tt.table)
			path := filepath.Join(t.TempDir(), "wpbot.lock")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			lock, err := Acquire(path)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			defer lock.Release()
			data, _ := os.ReadFile(path)
			if string(data) != "100|wpbot" {
				t.Fatalf("lock content = %q", data)
			}
		})
	}
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	fakeProcesses(t, 100, map[int]string{100: "wpbot"})
	path := filepath.Join(t.TempDir(), "wpbot.lock")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	// another instance took over after ours was considered stale
	if err := os.WriteFile(path, []byte("200|wpbot"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("foreign lock removed: %v", err)
	}
}
