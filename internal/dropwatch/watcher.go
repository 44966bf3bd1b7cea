// Package dropwatch turns manifest files dropped into a directory into
// received shipments.
package dropwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/stockroom/internal/inventory"
	"github.com/Iron-Ham/stockroom/internal/logging"
)

// DefaultDebounce is how long a file must be quiet before it is read.
// Many editors produce several events for a single save.
const DefaultDebounce = 50 * time.Millisecond

// DefaultExtensions are the manifest file extensions watched by default.
var DefaultExtensions = []string{".yaml", ".yml"}

// Receiver accepts a parsed shipment.
type Receiver func(ctx context.Context, s inventory.Shipment) (inventory.Shipment, error)

// Result reports what happened to one dropped file. Err is set if the file
// could not be parsed or the receiver failed.
type Result struct {
	Path     string
	Shipment inventory.Shipment
	Err      error
}

// Watcher watches a single directory (not its subdirectories) for manifest
// files.
type Watcher struct {
	watcher    *fsnotify.Watcher
	dir        string
	receive    Receiver
	debounce   time.Duration
	extensions []string
	logger     *logging.Logger

	mu       sync.RWMutex
	onResult func(Result)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is read.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions restricts processing to files with one of exts
// (case-insensitive, leading dot optional).
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) == 0 {
			return
		}
		w.extensions = make([]string, 0, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extensions = append(w.extensions, ext)
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Watcher for dir that hands each parsed manifest to receive.
func New(dir string, receive Receiver, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("drop directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("drop directory: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		watcher:    fw,
		dir:        dir,
		receive:    receive,
		debounce:   DefaultDebounce,
		extensions: DefaultExtensions,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("dropwatch").With("dir", dir)
	return w, nil
}

// SetResultCallback sets the callback invoked after each file is processed.
func (w *Watcher) SetResultCallback(cb func(Result)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onResult = cb
}

// Scan processes the matching files already present in the directory, in
// name order. It stops before the next file once ctx is done and returns
// ctx.Err().
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to scan drop directory: %w", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			w.logger.Info("scan interrupted", "file", e.Name())
			return err
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if w.matches(path) {
			w.process(ctx, path)
		}
	}
	return nil
}

// Run watches the directory until ctx is done. It closes the underlying
// watcher before returning; a Watcher cannot be run twice.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop directory", "extensions", strings.Join(w.extensions, ","))

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopped watching drop directory")
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.matches(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			slices.Sort(paths)

			for _, p := range paths {
				w.process(ctx, p)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err.Error())
		}
	}
}

// Close releases the underlying watcher. It is only needed when Run is
// never called.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(base)))
}

func (w *Watcher) process(ctx context.Context, path string) {
	res := Result{Path: path}

	s, err := inventory.LoadManifest(path)
	if err != nil {
		res.Err = err
		w.logger.Warn("rejected manifest", "file", path, "error", err.Error())
	} else {
		res.Shipment, res.Err = w.receive(ctx, s)
		if res.Err != nil {
			w.logger.Warn("shipment failed", "file", path, "shipment", s.ID, "error", res.Err.Error())
		} else {
			w.logger.Info("shipment received", "file", path, "shipment", s.ID, "items", len(s.Items))
		}
	}

	w.mu.RLock()
	cb := w.onResult
	w.mu.RUnlock()
	if cb != nil {
		cb(res)
	}
}
