package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file, and the guard allow file it names, when
// either changes on disk. Only valid configs are handed to the callback; a
// broken edit is logged and the previous config stays current.
//
// The watcher follows the parent directories rather than the files
// themselves, so editors that save by renaming a temp file over the original
// are picked up.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(old, new *Config)

	fs   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu        sync.Mutex
	current   *Config
	lastHash  [sha256.Size]byte
	allowFile string // absolute path of the watched allow file, if any
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for a burst of file events
// to settle before reloading. The default is 200ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads the config at path and starts watching it. onChange is
// called from the watcher's goroutine after each successful reload that
// changed the config file or the allow file's content.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		debounce: 200 * time.Millisecond,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.lastHash = cfg, hash

	w.fs, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		_ = w.fs.Close()
		return nil, fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}
	w.watchAllowFile(cfg)

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the watcher and waits for its goroutine to exit. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		_ = w.fs.Close()
		w.wg.Wait()
	})
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("config: file event", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)

		case <-timer.C:
			w.reload()
		}
	}
}

// relevant reports whether ev touches the config file or the allow file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	return name == w.path || (w.allowFile != "" && name == w.allowFile)
}

// reload re-reads the config and calls onChange when its content changed.
func (w *Watcher) reload() {
	cfg, hash, err := w.load()
	if err != nil {
		slog.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.lastHash = cfg, hash
	w.mu.Unlock()

	w.watchAllowFile(cfg)
	slog.Info("config: reloaded", "path", w.path)

	// The callback runs outside the lock so it can call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// load parses the config file and hashes it together with the allow file.
func (w *Watcher) load() (*Config, [sha256.Size]byte, error) {
	var zero [sha256.Size]byte

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, err
	}

	h := sha256.New()
	h.Write(data)
	if p := cfg.Guard.AllowFile; p != "" {
		allow, err := os.ReadFile(w.resolve(p))
		if err != nil {
			return nil, zero, fmt.Errorf("guard allow_file: %w", err)
		}
		h.Write([]byte{0})
		h.Write(allow)
	}

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return cfg, sum, nil
}

// watchAllowFile starts following the directory of cfg's allow file.
func (w *Watcher) watchAllowFile(cfg *Config) {
	p := cfg.Guard.AllowFile
	if p == "" {
		w.mu.Lock()
		w.allowFile = ""
		w.mu.Unlock()
		return
	}
	abs := w.resolve(p)

	w.mu.Lock()
	changed := abs != w.allowFile
	w.allowFile = abs
	w.mu.Unlock()

	if changed && filepath.Dir(abs) != filepath.Dir(w.path) {
		if err := w.fs.Add(filepath.Dir(abs)); err != nil {
			slog.Warn("config: cannot watch allow file", "path", abs, "err", err)
		}
	}
}

// resolve makes p absolute. Relative paths in the config are relative to
// the working directory, as everywhere else.
func (w *Watcher) resolve(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
