// Package manifest tracks the set of files that make up a database's
// persisted state — which SSTables exist, at which level, and the epoch
// counter writes are drawn from — across restarts. Every mutation is
// flushed to disk immediately as a full rewrite of the manifest file: at
// this scale there is no need for pebble's incremental version-edit log.
package manifest

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"hummock/internal/base"
)

// FileMeta describes one SSTable registered in the manifest.
type FileMeta struct {
	ID       uint64 `yaml:"id"`
	Level    uint64 `yaml:"level"`
	Filename string `yaml:"filename"`
}

// state is the on-disk manifest representation.
type state struct {
	NextFileID uint64     `yaml:"next_file_id"`
	Epoch      base.Epoch `yaml:"epoch"`
	Files      []FileMeta `yaml:"files"`
}

// Manifest is the mutable, file-backed record of a database's file set.
type Manifest struct {
	mu    sync.Mutex
	path  string
	state state
}

// Open reads path if it exists, or initializes a fresh manifest there
// otherwise.
func Open(path string) (*Manifest, error) {
	m := &Manifest{path: path, state: state{NextFileID: 1}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := m.save(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &m.state); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) save() error {
	data, err := yaml.Marshal(&m.state)
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("manifest: rename %s: %w", tmp, err)
	}
	return nil
}

// NextFileID allocates and persists the next unused SSTable file ID.
func (m *Manifest) NextFileID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.state.NextFileID
	m.state.NextFileID++
	if err := m.save(); err != nil {
		m.state.NextFileID--
		return 0, err
	}
	return id, nil
}

// AddFile registers a newly flushed SSTable.
func (m *Manifest) AddFile(f FileMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Files = append(m.state.Files, f)
	if err := m.save(); err != nil {
		m.state.Files = m.state.Files[:len(m.state.Files)-1]
		return err
	}
	return nil
}

// RemoveFile drops a file from the manifest, typically after compaction
// obsoletes it.
func (m *Manifest) RemoveFile(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.state.Files {
		if f.ID == id {
			removed := m.state.Files[i]
			m.state.Files = append(m.state.Files[:i], m.state.Files[i+1:]...)
			if err := m.save(); err != nil {
				m.state.Files = append(m.state.Files[:i:i], append([]FileMeta{removed}, m.state.Files[i:]...)...)
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("manifest: no such file id %d", id)
}

// Files returns a copy of the currently registered file set.
func (m *Manifest) Files() []FileMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FileMeta, len(m.state.Files))
	copy(out, m.state.Files)
	return out
}

// Epoch returns the last-persisted write epoch.
func (m *Manifest) Epoch() base.Epoch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Epoch
}

// SetEpoch persists the database's current write epoch, so a later Open
// resumes allocating epochs above it instead of colliding with versions
// already durable in a flushed SSTable.
func (m *Manifest) SetEpoch(epoch base.Epoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state.Epoch
	if epoch <= prev {
		return nil
	}
	m.state.Epoch = epoch
	if err := m.save(); err != nil {
		m.state.Epoch = prev
		return err
	}
	return nil
}
