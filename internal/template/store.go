package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dokmap/dokmap/internal/logger"
)

const (
	storeDirPerm  = 0o750
	storeFilePerm = 0o640
)

// Store persists one template file per cluster under a directory, keyed by
// cluster id, so a template can be edited or reverted without touching
// document data. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	dir       string
	templates map[string]*Template
	log       logger.Logger
}

// NewStore opens (creating if needed) a template directory and loads every
// template in it. A template file that fails to decode is logged and
// skipped, never fatal for the rest.
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, storeDirPerm); err != nil {
		return nil, fmt.Errorf("cannot create template directory %s: %w", dir, err)
	}

	s := &Store{
		dir:       dir,
		templates: make(map[string]*Template),
		log:       log,
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// Create makes and registers an empty template for a cluster. It is not
// persisted until Save is called.
func (s *Store) Create(clusterID, referenceFile string) *Template {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := New(clusterID, referenceFile)
	s.templates[clusterID] = t
	return t
}

// Get returns the template for a cluster, or nil if none exists.
func (s *Store) Get(clusterID string) *Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates[clusterID]
}

// Save validates, registers and persists a template.
func (s *Store) Save(t *Template) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid template: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[t.ClusterID] = t
	return s.writeFile(t)
}

// SaveAll persists every registered template, reporting the first failure.
func (s *Store) SaveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.templates {
		if err := s.writeFile(t); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a template from memory and disk. Deleting a template that
// does not exist is a no-op.
func (s *Store) Delete(clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[clusterID]; !ok {
		return nil
	}
	delete(s.templates, clusterID)

	path := s.filePath(clusterID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot remove template file %s: %w", path, err)
	}
	return nil
}

// ClusterIDs returns the ids of all registered templates.
func (s *Store) ClusterIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) filePath(clusterID string) string {
	return filepath.Join(s.dir, clusterID+".json")
}

func (s *Store) writeFile(t *Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode template %s: %w", t.ClusterID, err)
	}
	path := s.filePath(t.ClusterID)
	if err := os.WriteFile(path, data, storeFilePerm); err != nil {
		return fmt.Errorf("cannot write template file %s: %w", path, err)
	}
	return nil
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("cannot read template directory %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Error("cannot read template file %s: %v", path, err)
			continue
		}

		var t Template
		if err := json.Unmarshal(data, &t); err != nil {
			s.log.Error("cannot decode template file %s: %v", path, err)
			continue
		}
		if t.OCRLanguage == "" {
			// Templates written before the language field default to swe+eng.
			t.OCRLanguage = DefaultOCRLanguage
		}
		if err := t.Validate(); err != nil {
			s.log.Error("skipping invalid template %s: %v", path, err)
			continue
		}
		s.templates[t.ClusterID] = &t
	}
	return nil
}
