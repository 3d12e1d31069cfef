package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

const recordExt = ".json"

// LocalBackend stores one JSON file per model in a directory.
type LocalBackend struct {
	dir string
	mu  sync.RWMutex
}

// NewLocalBackend creates a backend rooted at dir, creating it if needed.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if dir == "" {
		return nil, errors.New(errors.CodeStoreInit, "store directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to create store directory").
			WithContext("dir", dir)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) path(id string) string {
	return filepath.Join(b.dir, id+recordExt)
}

// Save writes the record atomically via a temp file and rename.
func (b *LocalBackend) Save(ctx context.Context, rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tmp := b.path(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to write record").
			WithContext("id", rec.ID)
	}
	if err := os.Rename(tmp, b.path(rec.ID)); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to write record").
			WithContext("id", rec.ID)
	}
	return nil
}

// Load reads a record from disk.
func (b *LocalBackend) Load(ctx context.Context, id string) (*Record, error) {
	if err := checkID(id); err != nil {
		return nil, errors.ModelNotFound(id)
	}

	b.mu.RLock()
	data, err := os.ReadFile(b.path(id))
	b.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ModelNotFound(id)
		}
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to read record").
			WithContext("id", id)
	}
	return decodeRecord(id, data)
}

// Delete removes a record file.
func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// List reads every record in the directory. Unreadable files are skipped.
func (b *LocalBackend) List(ctx context.Context, sessionID string) ([]*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreRead, "failed to list store directory").
			WithContext("dir", b.dir)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != recordExt {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := strings.TrimSuffix(entry.Name(), recordExt)
		data, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			continue
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}

	records = filterSession(records, sessionID)
	sortRecords(records)
	return records, nil
}

// Name returns "local".
func (b *LocalBackend) Name() string {
	return "local"
}

// Close does nothing for the local backend.
func (b *LocalBackend) Close() error {
	return nil
}

// Dir returns the store directory.
func (b *LocalBackend) Dir() string {
	return b.dir
}
