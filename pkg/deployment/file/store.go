package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/deployment"
)

const (
	fileExtension = ".json"

	fileMode = 0o600
	dirMode  = 0o700
)

type model struct {
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	ContentHash   string    `json:"contentHash,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

func toModel(obj *deployment.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		Name:          obj.Name,
		Address:       obj.Address,
		ContentHash:   obj.ContentHash,
		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func fromModel(obj *model) *deployment.Record {
	return &deployment.Record{
		Name:          obj.Name,
		Address:       obj.Address,
		ContentHash:   obj.ContentHash,
		CreatedAt:     obj.CreatedAt,
		LastUpdatedAt: obj.LastUpdatedAt,
	}
}

type store struct {
	dir string

	mu sync.Mutex
}

// New returns a deployment.Store that keeps one JSON file per record name
// under dir. Every call reads or writes the file directly.
func New(dir string) deployment.Store {
	return &store{
		dir: dir,
	}
}

// Save implements deployment.Store.Save
func (s *store) Save(_ context.Context, record *deployment.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	path, err := s.path(record.Name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, err := load(path)
	switch {
	case err == nil:
		obj.CreatedAt = existing.CreatedAt
	case errors.Is(err, deployment.ErrNotFound):
		if obj.CreatedAt.IsZero() {
			obj.CreatedAt = now
		}
	default:
		return err
	}
	obj.LastUpdatedAt = now

	if err := save(path, obj); err != nil {
		return err
	}

	fromModel(obj).CopyTo(record)
	return nil
}

// Get implements deployment.Store.Get
func (s *store) Get(_ context.Context, name string) (*deployment.Record, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := load(path)
	if err != nil {
		return nil, err
	}

	return fromModel(obj), nil
}

// GetIfContentMatches implements deployment.Store.GetIfContentMatches
func (s *store) GetIfContentMatches(ctx context.Context, name, contentHash string) (*deployment.Record, error) {
	record, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	if !record.Matches(contentHash) {
		return nil, deployment.ErrContentMismatch
	}

	return record, nil
}

// Delete implements deployment.Store.Delete
func (s *store) Delete(_ context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

func (s *store) path(name string) (string, error) {
	if len(name) == 0 || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.Errorf("invalid record name %q", name)
	}

	return filepath.Join(s.dir, name+fileExtension), nil
}

func load(path string) (*model, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, deployment.ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var obj model
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	return &obj, nil
}

// save writes through a temporary file so readers never observe a partial
// record.
func save(path string, obj *model) error {
	raw, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode record")
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to chmod %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to rename into %s", path)
	}
	return nil
}

func (s *store) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, dirMode)
}
