package memory

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher watches the memory document set and reports debounced changes.
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
	workspace  string
	extraPaths []string
	onChange   func()
	debounce   time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger zerolog.Logger, workspace string, extraPaths []string, debounce time.Duration, onChange func()) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:    watcher,
		logger:     logger,
		workspace:  workspace,
		extraPaths: extraPaths,
		onChange:   onChange,
		debounce:   debounce,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	go fw.run()

	return fw, nil
}

// Start registers the workspace root, memory/ (recursively) and extra paths.
// Missing directories are ignored.
func (fw *FileWatcher) Start() error {
	if err := fw.watcher.Add(fw.workspace); err != nil {
		return err
	}
	fw.addTree(filepath.Join(fw.workspace, memoryDirName))

	for _, extra := range fw.extraPaths {
		abs := extra
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(fw.workspace, extra)
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if info.IsDir() {
			fw.addTree(abs)
			continue
		}
		if err := fw.watcher.Add(filepath.Dir(abs)); err != nil {
			fw.logger.Warn().Err(err).Str("path", abs).Msg("Failed to watch extra memory path")
		}
	}
	return nil
}

func (fw *FileWatcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fw.watcher.Add(path); err != nil {
				fw.logger.Warn().Err(err).Str("dir", path).Msg("Failed to watch memory directory")
			}
		}
		return nil
	})
}

// Stop stops the file watcher and any pending notification.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.mu.Lock()
		fw.stopped = true
		if fw.timer != nil {
			fw.timer.Stop()
		}
		fw.mu.Unlock()

		close(fw.stopCh)
		err = fw.watcher.Close()
		<-fw.done
	})
	return err
}

// run processes file system events
func (fw *FileWatcher) run() {
	defer close(fw.done)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("File watcher error")

		case <-fw.stopCh:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	// New directories under memory/ need their own watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fw.inWatchedTree(event.Name) {
				fw.addTree(event.Name)
				fw.scheduleChange()
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel := relativeDocPath(fw.workspace, event.Name)
	if !isMemoryDocumentPath(fw.workspace, rel, fw.extraPaths) {
		return
	}

	fw.logger.Debug().
		Str("file", rel).
		Str("op", event.Op.String()).
		Msg("Memory file change detected")
	fw.scheduleChange()
}

func (fw *FileWatcher) inWatchedTree(dir string) bool {
	rel := relativeDocPath(fw.workspace, dir)
	if rel == memoryDirName || strings.HasPrefix(rel, memoryDirName+"/") {
		return true
	}
	for _, extra := range fw.extraPaths {
		abs := extra
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(fw.workspace, extra)
		}
		abs = filepath.Clean(abs)
		if dir == abs || strings.HasPrefix(dir, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// scheduleChange debounces bursts of events into one callback.
func (fw *FileWatcher) scheduleChange() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.stopped {
		return
	}
	if fw.timer != nil {
		fw.timer.Stop()
	}

	fw.timer = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		stopped := fw.stopped
		fw.mu.Unlock()
		if stopped {
			return
		}
		fw.logger.Debug().Msg("Memory files changed")
		fw.onChange()
	})
}
