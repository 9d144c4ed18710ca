package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	goerrors "github.com/goliatone/go-errors"
)

var _ Store = (*FileStore)(nil)
var _ ChangeNotifier = (*FileStore)(nil)

// FileStore persists keys in a single JSON file and watches it with
// fsnotify, so independent processes sharing the file observe each other's
// writes. This is the non-browser analog of storage events across tabs.
//
// Writes replace the whole file through a temp-file rename, which keeps the
// whole-value replacement guarantee readers rely on.
type FileStore struct {
	path    string
	logger  Logger
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	snapshot  map[string]string
	listeners map[int]func(ChangeEvent)
	nextID    int
	closed    bool
}

// NewFileStore opens (or creates) a file-backed store at path and starts
// watching it for external mutations.
func NewFileStore(path string, logger Logger) (*FileStore, error) {
	if logger == nil {
		logger = defLogger{}
	}

	s := &FileStore{
		path:      path,
		logger:    logger,
		snapshot:  map[string]string{},
		listeners: map[int]func(ChangeEvent){},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create store directory")
	}

	values, err := s.load()
	if err != nil {
		return nil, err
	}
	s.snapshot = values

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to start store watcher")
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to watch store directory")
	}
	s.watcher = watcher

	go s.watch()

	return s, nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.snapshot[key]
	return value, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot[key] = value
	return s.flushLocked()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshot[key]; !ok {
		return nil
	}
	delete(s.snapshot, key)
	return s.flushLocked()
}

// Subscribe registers a listener for mutations performed by other
// processes. Local writes do not echo back.
func (s *FileStore) Subscribe(fn func(ChangeEvent)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close stops the watcher. The store remains readable from its snapshot.
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.watcher.Close()
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read store file")
	}

	values := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			// Unreadable file, treat as empty rather than propagate.
			s.logger.Warn("store file is corrupted, resetting: %v", err)
			return map[string]string{}, nil
		}
	}
	return values, nil
}

func (s *FileStore) flushLocked() error {
	data, err := json.Marshal(s.snapshot)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode store file")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write store file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to replace store file")
	}
	return nil
}

func (s *FileStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("store watcher error: %v", err)
		}
	}
}

// reload diffs the on-disk contents against the in-memory snapshot and
// emits a ChangeEvent per changed key. Local writes updated the snapshot
// already, so they produce no diff here.
func (s *FileStore) reload() {
	values, err := s.load()
	if err != nil {
		s.logger.Warn("store reload failed: %v", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	var events []ChangeEvent
	for key, value := range values {
		if prev, ok := s.snapshot[key]; !ok || prev != value {
			events = append(events, ChangeEvent{Key: key, Value: value})
		}
	}
	for key := range s.snapshot {
		if _, ok := values[key]; !ok {
			events = append(events, ChangeEvent{Key: key, Removed: true})
		}
	}

	s.snapshot = values
	listeners := make([]func(ChangeEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range listeners {
			if fn != nil {
				fn(ev)
			}
		}
	}
}
