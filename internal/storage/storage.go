// Package storage implements the durable, namespaced key-value store
// backing the credential core: one pretty-printed JSON object per profile
// directory, rewritten atomically on every mutation so readers never
// observe a partial file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	dataFileName = "data.json"

	// versionKey is the reserved top-level key carrying the schema version.
	versionKey = "stateVersion"

	// currentVersion is written into new stores; minVersion is the oldest
	// schema this build will load.
	currentVersion = 2
	minVersion     = 2
)

// Store is a process-shared key-value store over a single JSON file. Keys
// are dot-separated paths; flat namespaced keys are single-segment paths.
// One Store is shared by reference across every consumer and guarded by an
// in-process mutex held only for in-memory mutation plus file I/O.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]any
	log  *zap.Logger
}

// Open loads the data file under dir, creating the directory (owner-only)
// when missing. An absent file yields an empty store; a file written by an
// unsupported schema version fails fatally.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}

	s := &Store{
		path: filepath.Join(dir, dataFileName),
		data: make(map[string]any),
		log:  log,
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	if raw, ok := s.data[versionKey]; ok {
		v, ok := raw.(float64)
		if !ok || int(v) < minVersion {
			return nil, fmt.Errorf("%w: found %v, minimum supported is %d", ErrUnsupportedVersion, raw, minVersion)
		}
	}

	log.Debug("storage opened", zap.String("path", s.path), zap.Int("keys", len(s.data)))
	return s, nil
}

// Get deserializes the value at the dot-addressed key into out. It returns
// false when the key is absent and an error when the stored content cannot
// be deserialized into out's type.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := lookup(s.data, strings.Split(key, "."))
	if !ok || val == nil {
		return false, nil
	}

	b, err := json.Marshal(val)
	if err != nil {
		return false, fmt.Errorf("serialize value at %q: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("%w at %q: %v", ErrInvalidValue, key, err)
	}
	return true, nil
}

// Set serializes value, merges it into the in-memory snapshot creating
// intermediate objects along the path, and persists the whole snapshot.
// A non-object intermediate is overwritten.
func (s *Store) Set(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize value for %q: %w", key, err)
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return fmt.Errorf("serialize value for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	segments := strings.Split(key, ".")
	node := s.data
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = normalized

	return s.flushLocked()
}

// Remove deletes the key if present. It reports whether anything was
// removed and persists only in that case; a missing path segment is a
// no-op.
func (s *Store) Remove(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments := strings.Split(key, ".")
	node := s.data
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return false, nil
		}
		node = child
	}
	last := segments[len(segments)-1]
	if _, ok := node[last]; !ok {
		return false, nil
	}
	delete(node, last)

	if err := s.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureVersion stamps a new store with the current schema version. Stores
// that already carry a marker are left untouched.
func (s *Store) EnsureVersion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[versionKey]; ok {
		return nil
	}
	s.data[versionKey] = currentVersion
	return s.flushLocked()
}

// Flush serializes the whole snapshot to pretty JSON and writes it
// atomically.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, b); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func lookup(node map[string]any, segments []string) (any, bool) {
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			return nil, false
		}
		node = child
	}
	val, ok := node[segments[len(segments)-1]]
	return val, ok
}
