package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// load reads s.path (if present) and seeds s.values, emitting
// MEMORY_UPDATED for each loaded key so subscribers see startup state the
// same way they'd see a live change.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var raw map[schema.MemoryKey]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing persisted state: %w", err)
	}

	s.mu.Lock()
	for k, v := range raw {
		s.values[k] = v
	}
	s.mu.Unlock()

	for k, v := range raw {
		if err := s.Bus.Emit(bus.TopicMemoryUpdated, &schema.MemoryUpdatedPayload{
			Base:  bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: s.Name}},
			Key:   k,
			Value: v,
		}); err != nil {
			s.Logger.Warn("failed to emit memory updated for loaded key", "key", k, "error", err)
		}
	}
	return nil
}

// schedulePersistLocked (re)arms a single debounce timer so that a burst
// of sets within persistDebounce collapses into one write. Caller holds
// s.mu.
func (s *Store) schedulePersistLocked() {
	if s.path == "" {
		return
	}
	if s.persistTimer != nil {
		s.persistTimer.Stop()
	}
	s.persistTimer = time.AfterFunc(s.persistDebounce, func() {
		if err := s.persistNow(); err != nil {
			s.Logger.Error("failed to persist memory state", "error", err)
		}
	})
}

// persistNow writes the current state to s.path via
// write-temp-then-rename so a crash mid-write never corrupts the
// existing file.
func (s *Store) persistNow() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	snapshot := make(map[schema.MemoryKey]interface{}, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating persistence dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}
