package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterbourgon/diskv/v3"
)

// DiskStore keeps key-value items as one file per key under a directory.
// It is the lightweight alternative to the SQLite-backed items table and
// satisfies the same GetItem/SetItem/RemoveItem contract.
type DiskStore struct {
	d *diskv.Diskv
}

// OpenDisk creates a DiskStore rooted at dataDir/items.
func OpenDisk(dataDir string) (*DiskStore, error) {
	base := filepath.Join(dataDir, "items")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("creating items directory: %w", err)
	}
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:     base,
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024, // 1MB
	})}, nil
}

// Keys are fixed identifiers like "pulse_entries", so every item lives
// directly under the base path.
func flatTransform(string) []string { return []string{} }

func (s *DiskStore) GetItem(key string) (string, bool, error) {
	if !s.d.Has(key) {
		return "", false, nil
	}
	val, err := s.d.Read(key)
	if err != nil {
		return "", false, fmt.Errorf("reading item %q: %w", key, err)
	}
	return string(val), true, nil
}

func (s *DiskStore) SetItem(key, value string) error {
	if err := s.d.Write(key, []byte(value)); err != nil {
		return fmt.Errorf("writing item %q: %w", key, err)
	}
	return nil
}

func (s *DiskStore) RemoveItem(key string) error {
	if !s.d.Has(key) {
		return nil
	}
	if err := s.d.Erase(key); err != nil {
		return fmt.Errorf("removing item %q: %w", key, err)
	}
	return nil
}
