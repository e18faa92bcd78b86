package confdesk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/MixyLabs/confdesk/pkg/confdesk/util"
)

const (
	crashlogFilename        = "confdesk-crash-%s.log"
	crashlogTimestampFormat = "2006.01.02-15.04.05"

	crashMessage = `-----------------------------------------------------------------
                      confdesk crashlog
-----------------------------------------------------------------
Unfortunately, confdesk has crashed.
To help diagnose the issue, a crashlog has been generated.
Please consider sharing this file with developers to help improve confdesk.
You can do so by opening an issue at: https://github.com/MixyLabs/confdesk/issues/new
-----------------------------------------------------------------
Time: %s
Panic occurred: %s
Stack trace:
%s
-----------------------------------------------------------------
`
)

// writeCrashlog stores a crash report for r in dir and returns its path
func writeCrashlog(dir string, now time.Time, r any) (string, error) {
	if err := util.EnsureDirExists(dir); err != nil {
		return "", fmt.Errorf("ensure crashlog dir exists: %w", err)
	}

	crashlogBytes := bytes.NewBufferString(fmt.Sprintf(crashMessage, now.Format(crashlogTimestampFormat), r, debug.Stack()))
	crashlogPath := filepath.Join(dir, fmt.Sprintf(crashlogFilename, now.Format(crashlogTimestampFormat)))

	if err := os.WriteFile(crashlogPath, crashlogBytes.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write crashlog file: %w", err)
	}

	return crashlogPath, nil
}

func (d *Confdesk) recoverFromPanic() {
	r := recover()

	if r == nil {
		return
	}

	crashlogPath, err := writeCrashlog(logDirectory, time.Now(), r)
	if err != nil {
		panic(fmt.Errorf("can't even write the crashlog file contents: %w", err))
	}

	d.logger.Errorw("Encountered and logged panic, crashing",
		"crashlogPath", crashlogPath,
		"error", r)

	d.notifier.Notify("Unexpected crash occurred...",
		fmt.Sprintf("More details in %s", crashlogPath))

	d.signalStop()
	d.logger.Errorw("Quitting", "exitCode", 1)
	os.Exit(1)
}
