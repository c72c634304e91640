package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

// document is the on-disk shape: {"guilds": {"<id>": {...}}}.
type document struct {
	Guilds map[string]store.GuildConfig `json:"guilds"`
}

// FileGuildStore implements store.GuildStore over a single JSON document
// that is rewritten atomically on every Put.
type FileGuildStore struct {
	path string

	mu  sync.RWMutex
	doc document
}

// NewFileGuildStore opens the document at path. A missing file starts empty.
func NewFileGuildStore(path string) (*FileGuildStore, error) {
	s := &FileGuildStore{
		path: path,
		doc:  document{Guilds: make(map[string]store.GuildConfig)},
	}
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		s.doc.Guilds = doc
	}
	return s, nil
}

// NewFileStores creates all stores backed by the JSON document (standalone mode).
func NewFileStores(cfg store.StoreConfig) (*store.Stores, error) {
	gs, err := NewFileGuildStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &store.Stores{Guilds: gs}, nil
}

// ReadDocument loads the guild map from a document file. It returns nil
// without error when the file does not exist.
func ReadDocument(path string) (map[string]store.GuildConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Guilds == nil {
		doc.Guilds = make(map[string]store.GuildConfig)
	}
	return doc.Guilds, nil
}

func (s *FileGuildStore) Get(_ context.Context, guildID string) (store.GuildConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.doc.Guilds[guildID]
	if !ok {
		return store.GuildConfig{}, store.ErrNotFound
	}
	return cfg.Clone(), nil
}

func (s *FileGuildStore) Put(_ context.Context, guildID string, cfg store.GuildConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.doc.Guilds[guildID]
	s.doc.Guilds[guildID] = cfg.Clone()
	if err := s.saveLocked(); err != nil {
		if had {
			s.doc.Guilds[guildID] = prev
		} else {
			delete(s.doc.Guilds, guildID)
		}
		return err
	}
	return nil
}

func (s *FileGuildStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.doc.Guilds))
	for id := range s.doc.Guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// saveLocked writes the document atomically: temp file → fsync → rename.
func (s *FileGuildStore) saveLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "guilds-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
