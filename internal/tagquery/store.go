package tagquery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// presetFileName is a small, infrequently-written YAML document living in
// the config directory, loaded in full and rewritten in full on every
// change.
const presetFileName = "presets.yaml"

// presetFile is the on-disk document shape.
type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// PresetStore provides thread-safe CRUD over the on-disk preset document.
type PresetStore struct {
	mu        sync.RWMutex
	configDir string
}

// NewPresetStore creates a PresetStore rooted at configDir.
func NewPresetStore(configDir string) *PresetStore {
	return &PresetStore{configDir: configDir}
}

func (s *PresetStore) path() string {
	return filepath.Join(s.configDir, presetFileName)
}

// Load reads the preset document. A missing file is not an error; it
// yields an empty store.
func (s *PresetStore) Load() ([]Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *PresetStore) loadLocked() ([]Preset, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read preset file: %w", err)
	}
	var doc presetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse preset file: %w", err)
	}
	return doc.Presets, nil
}

// Get returns a single preset by name.
func (s *PresetStore) Get(name string) (Preset, bool, error) {
	presets, err := s.Load()
	if err != nil {
		return Preset{}, false, err
	}
	for _, p := range presets {
		if p.Name == name {
			return p, true, nil
		}
	}
	return Preset{}, false, nil
}

// Save upserts a preset by name and rewrites the document.
func (s *PresetStore) Save(p Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.loadLocked()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range presets {
		if existing.Name == p.Name {
			presets[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		presets = append(presets, p)
	}

	return s.writeLocked(presets)
}

// Delete removes a preset by name. Idempotent.
func (s *PresetStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets, err := s.loadLocked()
	if err != nil {
		return err
	}

	out := presets[:0]
	for _, p := range presets {
		if p.Name != name {
			out = append(out, p)
		}
	}
	return s.writeLocked(out)
}

func (s *PresetStore) writeLocked(presets []Preset) error {
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(presetFile{Presets: presets})
	if err != nil {
		return fmt.Errorf("marshal preset file: %w", err)
	}
	return os.WriteFile(s.path(), data, 0o644)
}
