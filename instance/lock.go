// Package instance keeps a single bot process per lock file.
package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid
)

// ErrAlreadyRunning means a live process holds the lock.
var ErrAlreadyRunning = errors.New("another bot instance is already running")

// Lock is a held lock file. The file holds "PID|executable".
type Lock struct {
	path string
	pid  int
}

// Acquire creates the lock file at path. A lock left behind by a dead process,
// or by a process running a different executable, is replaced.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	pid := getpidFunc()
	content := fmt.Sprintf("%d|%s", pid, selfExecutable(pid))

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.WriteString(content)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return &Lock{path: path, pid: pid}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		holder, alive := inspect(path)
		if alive && holder != pid {
			return nil, fmt.Errorf("%w (pid %d, lock %s)", ErrAlreadyRunning, holder, path)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("could not acquire lock %s", path)
}

// Release removes the lock file if it still belongs to this process.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid, _, ok := parse(string(data)); !ok || pid != l.pid {
		return nil
	}
	return os.Remove(l.path)
}

func (l *Lock) Path() string { return l.path }

// inspect reports the PID recorded at path and whether that process is alive
// and still runs the recorded executable.
func inspect(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, exe, ok := parse(string(data))
	if !ok {
		return 0, false
	}
	proc, err := findProcessFunc(pid)
	if err != nil || proc == nil {
		return pid, false
	}
	return pid, exe == "" || proc.Executable() == exe
}

func parse(content string) (int, string, bool) {
	pidStr, exe, _ := strings.Cut(strings.TrimSpace(content), "|")
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, "", false
	}
	return pid, exe, true
}

func selfExecutable(pid int) string {
	if proc, err := findProcessFunc(pid); err == nil && proc != nil {
		return proc.Executable()
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Base(exe)
}
