package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlsdud9098/voice-summary-api/internal/domain"
)

// ErrNotFound is returned when no recording exists for the requested ID.
var ErrNotFound = errors.New("recording not found")

type metaData struct {
	Recordings map[string]domain.Recording `json:"recordings"`
}

type Store struct {
	mu   sync.RWMutex
	path string
	data metaData
}

func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := &Store{path: filepath.Join(baseDir, "db.json")}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = metaData{
		Recordings: map[string]domain.Recording{},
	}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("open db file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			return s.saveLocked()
		}
		return fmt.Errorf("decode db file: %w", err)
	}

	if s.data.Recordings == nil {
		s.data.Recordings = map[string]domain.Recording{}
	}
	return nil
}

func (s *Store) Create(rec domain.Recording) (domain.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = domain.StatusUploaded
	}
	now := time.Now().Unix()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.data.Recordings[rec.ID] = rec

	if err := s.saveLocked(); err != nil {
		return domain.Recording{}, err
	}

	return rec, nil
}

func (s *Store) Get(id string) (domain.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data.Recordings[id]
	if !ok {
		return domain.Recording{}, ErrNotFound
	}
	return rec, nil
}

// Update applies mutate to the stored recording under the write lock and
// persists the result. The updated_at timestamp is bumped on every call.
func (s *Store) Update(id string, mutate func(*domain.Recording)) (domain.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Recordings[id]
	if !ok {
		return domain.Recording{}, ErrNotFound
	}

	mutate(&rec)
	rec.ID = id
	rec.UpdatedAt = time.Now().Unix()
	s.data.Recordings[id] = rec

	if err := s.saveLocked(); err != nil {
		return domain.Recording{}, err
	}
	return rec, nil
}

// SetStatus is a convenience wrapper around Update for bare status changes.
func (s *Store) SetStatus(id string, status domain.RecordingStatus) (domain.Recording, error) {
	return s.Update(id, func(rec *domain.Recording) {
		rec.Status = status
	})
}

// List returns one page of recordings sorted newest-first, plus the total
// count across all pages.
func (s *Store) List(page, pageSize int) ([]domain.Recording, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Recording, 0, len(s.data.Recordings))
	for _, rec := range s.data.Recordings {
		all = append(all, rec)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)

	offset := (page - 1) * pageSize
	if offset >= total {
		return []domain.Recording{}, total
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	return all[offset:end], total
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Recordings[id]; !ok {
		return ErrNotFound
	}

	delete(s.data.Recordings, id)

	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "db-*.json")
	if err != nil {
		return fmt.Errorf("create temp db: %w", err)
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode db: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp db: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace db file: %w", err)
	}

	return nil
}
