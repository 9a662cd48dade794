// Package watcher reports content changes to individual files.
package watcher

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher watches schema and fixture files for changes. It watches the
// parent directory of every file so that editors which save by renaming a
// temporary file over the original keep triggering callbacks.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	log     zerolog.Logger

	mu        sync.Mutex
	files     map[string]*watchedFile
	dirs      map[string]int
	timers    map[string]*time.Timer
	closeOnce sync.Once
}

type watchedFile struct {
	hash     string
	callback func(string)
	debounce time.Duration
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(log zerolog.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FileWatcher{
		watcher: w,
		log:     log,
		files:   make(map[string]*watchedFile),
		dirs:    make(map[string]int),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Watch registers callback for content changes to path. Bursts of events
// within debounce collapse into one check; zero checks every event.
// The callback only fires when the file's SHA-256 differs from the last seen.
func (fw *FileWatcher) Watch(path string, callback func(string), debounce time.Duration) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	hash, err := fileHash(abs)
	if err != nil {
		return fmt.Errorf("failed to get initial hash: %w", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, exists := fw.files[abs]; !exists {
		dir := filepath.Dir(abs)
		if fw.dirs[dir] == 0 {
			if err := fw.watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch file: %w", err)
			}
		}
		fw.dirs[dir]++
	}
	fw.files[abs] = &watchedFile{hash: hash, callback: callback, debounce: debounce}

	fw.log.Debug().Str("path", abs).Dur("debounce", debounce).Msg("watching file")
	return nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
}

func (fw *FileWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			fw.schedule(filepath.Clean(event.Name))

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (fw *FileWatcher) schedule(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	f, ok := fw.files[path]
	if !ok {
		return
	}
	if f.debounce <= 0 {
		go fw.handleFileChange(path)
		return
	}

	if timer, exists := fw.timers[path]; exists {
		timer.Stop()
	}
	// A timer that fired while a newer one was being scheduled must leave
	// the newer entry alone. fw.mu is held until timer is assigned.
	var timer *time.Timer
	timer = time.AfterFunc(f.debounce, func() {
		fw.mu.Lock()
		if fw.timers[path] != timer {
			fw.mu.Unlock()
			return
		}
		delete(fw.timers, path)
		fw.mu.Unlock()
		fw.handleFileChange(path)
	})
	fw.timers[path] = timer
}

// handleFileChange re-hashes path and fires the callback on a real change.
// A file that vanished mid-save is ignored; the following create event
// brings it back.
func (fw *FileWatcher) handleFileChange(path string) {
	newHash, err := fileHash(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fw.log.Warn().Err(err).Str("path", path).Msg("failed to hash file")
		}
		return
	}

	fw.mu.Lock()
	f, ok := fw.files[path]
	changed := ok && f.hash != newHash
	if changed {
		f.hash = newHash
	}
	fw.mu.Unlock()

	if changed {
		fw.log.Info().Str("path", path).Msg("file changed")
		f.callback(path)
	}
}

func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// Close stops the file watcher and any pending debounce timers.
func (fw *FileWatcher) Close() error {
	var err error
	fw.closeOnce.Do(func() {
		fw.mu.Lock()
		for path, timer := range fw.timers {
			timer.Stop()
			delete(fw.timers, path)
		}
		fw.mu.Unlock()
		err = fw.watcher.Close()
	})
	return err
}

// Unwatch stops watching a specific file
func (fw *FileWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, ok := fw.files[abs]; !ok {
		return nil
	}
	delete(fw.files, abs)
	if timer, ok := fw.timers[abs]; ok {
		timer.Stop()
		delete(fw.timers, abs)
	}

	dir := filepath.Dir(abs)
	fw.dirs[dir]--
	if fw.dirs[dir] > 0 {
		return nil
	}
	delete(fw.dirs, dir)
	return fw.watcher.Remove(dir)
}
