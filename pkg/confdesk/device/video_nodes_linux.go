package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	videoNodePrefix = "video"
	v4lSysfsDir     = "/sys/class/video4linux"
)

// videoNodes reports V4L2 capture nodes appearing and disappearing in a device directory
type videoNodes struct {
	logger *zap.SugaredLogger
	dir    string

	watcher *fsnotify.Watcher

	lock  sync.Mutex
	known map[string]Device // by node path

	notifications chan CaptureNotification
	stopped       chan struct{}
}

func newVideoNodes(logger *zap.SugaredLogger, dir string) (*videoNodes, error) {
	logger = logger.Named("video_nodes")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnw("Failed to create device directory watcher", "error", err)
		return nil, fmt.Errorf("create device directory watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		logger.Warnw("Failed to watch device directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("watch device directory %s: %w", dir, err)
	}

	vn := &videoNodes{
		logger:        logger,
		dir:           dir,
		watcher:       watcher,
		known:         make(map[string]Device),
		notifications: make(chan CaptureNotification, 16),
		stopped:       make(chan struct{}),
	}

	if _, err := vn.Devices(); err != nil {
		vn.logger.Warnw("Failed to enumerate video nodes during init", "error", err)
	}

	go vn.watch()

	vn.logger.Debugw("Created video node bus instance", "dir", dir)

	return vn, nil
}

func isVideoNode(path string) bool {
	return strings.HasPrefix(filepath.Base(path), videoNodePrefix)
}

func describeVideoNode(path string) Device {
	base := filepath.Base(path)
	name := base

	// the kernel exposes the card name next to the node
	if raw, err := os.ReadFile(filepath.Join(v4lSysfsDir, base, "name")); err == nil {
		if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
			name = trimmed
		}
	}

	return Device{
		HardwareID:  path,
		Name:        name,
		Direction:   Input,
		Kind:        Video,
		IsConnected: true,
	}
}

func (vn *videoNodes) watch() {
	defer close(vn.stopped)
	defer close(vn.notifications)

	for {
		select {
		case event, ok := <-vn.watcher.Events:
			if !ok {
				return
			}
			if !isVideoNode(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Create):
				dev := describeVideoNode(event.Name)

				vn.lock.Lock()
				vn.known[event.Name] = dev
				vn.lock.Unlock()

				vn.notifications <- CaptureNotification{Device: dev, Connected: true}

			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				vn.lock.Lock()
				dev, known := vn.known[event.Name]
				delete(vn.known, event.Name)
				vn.lock.Unlock()

				if !known {
					// its sysfs entry is gone already, nothing left to describe it by
					vn.logger.Debugw("Ignoring removal of unknown video node", "path", event.Name)
					continue
				}

				vn.notifications <- CaptureNotification{Device: dev, Connected: false}
			}

		case err, ok := <-vn.watcher.Errors:
			if !ok {
				return
			}
			vn.logger.Warnw("Device directory watcher error", "error", err)
		}
	}
}

func (vn *videoNodes) Devices() ([]Device, error) {
	matches, err := filepath.Glob(filepath.Join(vn.dir, videoNodePrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("list video nodes: %w", err)
	}

	sort.Strings(matches)

	devices := make([]Device, 0, len(matches))

	vn.lock.Lock()
	defer vn.lock.Unlock()

	for _, path := range matches {
		dev := describeVideoNode(path)
		vn.known[path] = dev
		devices = append(devices, dev)
	}

	return devices, nil
}

func (vn *videoNodes) Default(kind MediaKind) (Device, bool) {
	if kind != Video {
		return Device{}, false
	}

	devices, err := vn.Devices()
	if err != nil || len(devices) == 0 {
		return Device{}, false
	}

	return devices[0], true
}

func (vn *videoNodes) Notifications() <-chan CaptureNotification {
	return vn.notifications
}

func (vn *videoNodes) Close() error {
	err := vn.watcher.Close()
	<-vn.stopped

	if err != nil {
		vn.logger.Warnw("Failed to close device directory watcher", "error", err)
		return fmt.Errorf("close device directory watcher: %w", err)
	}

	vn.logger.Debug("Released video node bus instance")

	return nil
}
