package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"comicgen-server/modules/common/model"
)

// ErrNotFound is returned when no project document exists for an id.
var ErrNotFound = errors.New("project not found")

// Store persists project documents as one YAML file per project id. Writes are
// whole-document and atomic (temp file + rename), last writer wins. Concurrent
// pipelines are expected to operate on disjoint project ids; the mutex only
// serialises the load-mutate-save window of Patch within this process.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the store directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create projects dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// Load reads and decodes a project document.
func (s *Store) Load(id string) (*model.Project, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read project %s: %w", id, err)
	}

	var project model.Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	return &project, nil
}

// Save writes the whole document atomically.
func (s *Store) Save(project *model.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project id is required")
	}

	data, err := yaml.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to encode project %s: %w", project.ID, err)
	}

	tmp := s.path(project.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write project %s: %w", project.ID, err)
	}
	if err := os.Rename(tmp, s.path(project.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit project %s: %w", project.ID, err)
	}

	log.Printf("💾 Project saved: %s (%d panels, %d characters)",
		project.ID, len(project.Panels), len(project.Characters))
	return nil
}

// Patch loads a project, applies the mutator and saves the result. The mutator
// must be pure with respect to everything except the passed project.
func (s *Store) Patch(id string, mutate func(*model.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, err := s.Load(id)
	if err != nil {
		return err
	}
	if err := mutate(project); err != nil {
		return err
	}
	return s.Save(project)
}

// LatestID returns the id of the most recently written project document.
// Used when a regeneration request does not name a project.
func (s *Store) LatestID() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to list projects dir: %w", err)
	}

	type candidate struct {
		id    string
		mtime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			id:    strings.TrimSuffix(name, ".yaml"),
			mtime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime > candidates[j].mtime })
	return candidates[0].id, nil
}
