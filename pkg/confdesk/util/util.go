package util

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/mitchellh/go-ps"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by CreateMutex when another live process holds the lock
var ErrAlreadyRunning = errors.New("another instance is already running")

// EnsureDirExists creates the given directory path if it doesn't already exist
func EnsureDirExists(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("ensure directory exists (%s): %w", path, err)
	}

	return nil
}

// FileExists checks if a file exists and is not a directory before we try using it to prevent further errors
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && !info.IsDir()
}

// Linux returns true if we're running on Linux
func Linux() bool {
	return runtime.GOOS == "linux"
}

// SetupCloseHandler creates a 'listener' on a new goroutine which will notify the
// program if it receives an interrupt from the OS
func SetupCloseHandler() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	return c
}

// OpenExternal spawns a detached window with the provided command and argument
func OpenExternal(logger *zap.SugaredLogger, cmd string, arg string) error {
	command := exec.Command(cmd, arg)

	if err := command.Start(); err != nil {
		logger.Warnw("Failed to spawn detached process",
			"command", cmd,
			"argument", arg,
			"error", err)

		return fmt.Errorf("spawn detached proc: %w", err)
	}

	return nil
}

// OpenFile opens path with the platform's default handler
func OpenFile(logger *zap.SugaredLogger, path string) error {
	return OpenExternal(logger, openFileCommand, path)
}

// CreateMutex takes a pid lock file named after name. The lock of a process that
// no longer exists is taken over.
func CreateMutex(name string) error {
	lockFile := name + ".lock"
	currentPid := os.Getpid()

	if lockContent, err := os.ReadFile(lockFile); err == nil {
		lockPid, err := strconv.Atoi(strings.TrimSpace(string(lockContent)))
		if err == nil && lockPid != currentPid {
			process, err := ps.FindProcess(lockPid)
			if err == nil && process != nil {
				return fmt.Errorf("%w: pid %d (%s)", ErrAlreadyRunning, lockPid, process.Executable())
			}
		}
	}

	if err := os.WriteFile(lockFile, []byte(strconv.Itoa(currentPid)), 0664); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	return nil
}

// ReleaseMutex removes the lock file taken by CreateMutex
func ReleaseMutex(name string) error {
	if err := os.Remove(name + ".lock"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}

	return nil
}
