// Package spool turns files dropped into per-queue directories into queued uploads.
//
// Layout: <dir>/<queue>/<file>. Once a file has been quiet for the debounce
// period it is moved to <dir>/.queued/<queue>/<id>-<file> and enqueued.
package spool

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
)

// QueuedDir is the directory, relative to the spool root, that holds claimed files.
const QueuedDir = ".queued"

// MetadataOriginalName carries the file's name as dropped into the spool.
const MetadataOriginalName = "Original-Name"

// Config holds configuration for the spool watcher.
type Config struct {
	Directory string
	Debounce  time.Duration
	Logger    *logging.Logger
}

// DefaultConfig returns the default spool configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Directory: dir,
		Debounce:  2 * time.Second,
	}
}

// Watcher monitors the spool directories and enqueues stable files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    Config
	queues    map[string]ports.UploadQueue
	logger    *logging.Logger

	// Debouncing state: path -> last event time
	pending   map[string]time.Time
	pendingMu sync.Mutex

	// Serializes claims between the sweep and the debounce loop.
	claimMu sync.Mutex

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher feeding the given queues, keyed by queue name.
func NewWatcher(cfg Config, queues map[string]ports.UploadQueue) (*Watcher, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig("").Debounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		queues:    queues,
		logger:    cfg.Logger.With("component", "spool"),
		pending:   make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// QueueDir returns the directory watched for the named queue.
func (w *Watcher) QueueDir(queue string) string {
	return filepath.Join(w.config.Directory, queue)
}

// Start creates the queue directories, claims files already present, and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.closed || w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	for _, name := range w.queueNames() {
		dir := w.QueueDir(name)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create spool directory %s: %w", dir, err)
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	if _, err := w.Sweep(ctx); err != nil {
		w.logger.Warn("initial spool sweep failed", "error", err)
	}

	w.wg.Add(1)
	go w.processEvents()

	w.wg.Add(1)
	go w.debounceProcessor()

	return nil
}

// Sweep claims every eligible file currently in the queue directories and
// returns how many were enqueued.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	claimed := 0
	for _, name := range w.queueNames() {
		entries, err := os.ReadDir(w.QueueDir(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return claimed, err
		}
		for _, e := range entries {
			if e.IsDir() || !eligible(e.Name()) {
				continue
			}
			if _, err := w.claim(ctx, name, filepath.Join(w.QueueDir(name), e.Name())); err != nil {
				w.logger.Warn("failed to enqueue spooled file", "queue", name, "file", e.Name(), "error", err)
				continue
			}
			claimed++
		}
	}
	return claimed, nil
}

// Tidy deletes claimed copies under .queued/<queue> whose items have left
// the queue, either delivered or dropped. It returns how many were removed.
func (w *Watcher) Tidy(ctx context.Context, queue string) (int, error) {
	store, ok := w.queues[queue]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domainerrors.ErrQueueNotFound, queue)
	}

	w.claimMu.Lock()
	defer w.claimMu.Unlock()

	dir := filepath.Join(w.config.Directory, QueuedDir, queue)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		id, ok := claimedID(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		_, err := store.Get(ctx, id)
		if err == nil {
			continue
		}
		if !domainerrors.Is(err, domainerrors.ErrItemNotFound) {
			return removed, err
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		w.logger.Debug("removed settled spool files", "queue", queue, "count", removed)
	}
	return removed, nil
}

// Listen is an engine event listener that tidies a queue after each cycle.
func (w *Watcher) Listen(ev outbox.Event) {
	if ev.Type != outbox.EventComplete && ev.Type != outbox.EventError {
		return
	}
	if _, err := w.Tidy(context.Background(), ev.Queue); err != nil {
		w.logger.Warn("failed to tidy spool", "queue", ev.Queue, "error", err)
	}
}

// claimedID extracts the item id from a "<uuid>-<name>" claimed file name.
func claimedID(name string) (string, bool) {
	const n = 36
	if len(name) <= n || name[n] != '-' {
		return "", false
	}
	if _, err := uuid.Parse(name[:n]); err != nil {
		return "", false
	}
	return name[:n], true
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	return err
}

// processEvents reads from fsnotify and records candidate files for debouncing.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !eligible(filepath.Base(event.Name)) {
				continue
			}

			w.pendingMu.Lock()
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.pending[event.Name] = time.Now()
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(w.pending, event.Name)
			}
			w.pendingMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("spool watcher error", "error", err)
		}
	}
}

// debounceProcessor periodically claims files that have been quiet long enough.
func (w *Watcher) debounceProcessor() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.claimStable()
		}
	}
}

func (w *Watcher) claimStable() {
	w.pendingMu.Lock()
	now := time.Now()
	stable := make([]string, 0)
	for path, last := range w.pending {
		if now.Sub(last) >= w.config.Debounce {
			stable = append(stable, path)
		}
	}
	for _, path := range stable {
		delete(w.pending, path)
	}
	w.pendingMu.Unlock()

	sort.Strings(stable)
	for _, path := range stable {
		queue := filepath.Base(filepath.Dir(path))
		if _, ok := w.queues[queue]; !ok {
			continue
		}
		if _, err := w.claim(w.ctx, queue, path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("failed to enqueue spooled file", "queue", queue, "file", path, "error", err)
		}
	}
}

// claim moves path out of the watched directory and enqueues it.
// The move is undone if the enqueue fails.
func (w *Watcher) claim(ctx context.Context, queue, path string) (*outbox.Upload, error) {
	w.claimMu.Lock()
	defer w.claimMu.Unlock()

	store := w.queues[queue]
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	id := uuid.NewString()
	dest := filepath.Join(w.config.Directory, QueuedDir, queue, id+"-"+filepath.Base(path))
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return nil, err
	}
	if err := os.Rename(path, dest); err != nil {
		return nil, err
	}

	u := outbox.NewUpload(id, queue, dest, ContentType(path), info.Size())
	u.Metadata[MetadataOriginalName] = filepath.Base(path)
	if err := store.Enqueue(ctx, u); err != nil {
		if rerr := os.Rename(dest, path); rerr != nil {
			w.logger.Error("failed to restore spooled file", "file", path, "error", rerr)
		}
		return nil, err
	}

	w.logger.Info("spooled file enqueued",
		"queue", queue,
		"item_id", id,
		"file", filepath.Base(path),
		"size_bytes", info.Size(),
	)
	return u, nil
}

func (w *Watcher) queueNames() []string {
	names := make([]string, 0, len(w.queues))
	for name := range w.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewUploadFromFile builds an upload for an existing file with a fresh id.
func NewUploadFromFile(queue, path string) (*outbox.Upload, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	u := outbox.NewUpload(uuid.NewString(), queue, abs, ContentType(abs), info.Size())
	u.Metadata[MetadataOriginalName] = filepath.Base(abs)
	return u, nil
}

// contentTypes covers the recorder's formats, which system MIME tables often lack.
var contentTypes = map[string]string{
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".pdf":  "application/pdf",
}

// ContentType guesses a MIME type from the file extension.
func ContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// eligible skips hidden files and partial downloads.
func eligible(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".tmp", ".crdownload":
		return false
	}
	return true
}
