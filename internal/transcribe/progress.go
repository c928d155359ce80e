package transcribe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"meetcorrect/pkg/logger"
)

// watchProgressFile watches path for writes and calls onTick with the
// parsed ProgressEvent each time it changes, until ctx is cancelled. It
// is the fsnotify-backed analogue of the teacher's dropzone watcher,
// repurposed here to watch a single progress file instead of a directory
// of dropped audio. If the watch can't be established, it falls back to
// polling every pollInterval — keeping spec.md's documented poll-based
// contract as the floor.
func watchProgressFile(ctx context.Context, path string, pollInterval time.Duration, onTick func(ProgressEvent)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("progress watcher unavailable, falling back to polling", "error", err)
		pollProgressFile(ctx, path, pollInterval, onTick)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("progress watcher could not watch directory, falling back to polling", "dir", dir, "error", err)
		pollProgressFile(ctx, path, pollInterval, onTick)
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name == path && (event.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				if ev, ok := readProgressFile(path); ok {
					onTick(ev)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("progress watcher error", "error", err)
		case <-ticker.C:
			// Safety-net poll: the transcription process may rewrite the file
			// without a detectable fsnotify event on some filesystems (NFS
			// mounts in Mode A's shared volume, in particular).
			if ev, ok := readProgressFile(path); ok {
				onTick(ev)
			}
		}
	}
}

func pollProgressFile(ctx context.Context, path string, interval time.Duration, onTick func(ProgressEvent)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ev, ok := readProgressFile(path); ok {
				onTick(ev)
			}
		}
	}
}

func readProgressFile(path string) (ProgressEvent, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProgressEvent{}, false
	}
	var ev ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ProgressEvent{}, false
	}
	return ev, true
}
