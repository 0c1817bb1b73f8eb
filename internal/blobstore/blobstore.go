// Package blobstore is the filesystem-backed store for uploaded batch input
// files and the output/error artifacts a batch job produces, keyed by the
// same file-<uuid> id scheme the upstream service uses.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Object describes one stored blob, mirroring the upstream FileObject shape.
type Object struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}

// Store is a directory of opaque-ID-named files.
type Store struct {
	dir string
}

// NewStore creates dir if it does not already exist and returns a Store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// NewFileID mints an opaque file-<uuid> identifier.
func NewFileID() string {
	return "file-" + uuid.NewString()
}

// Path returns the on-disk path for id. It does not check existence.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// safeID reports whether id is a bare filename with no path separators or
// traversal segments, so it cannot be used to escape the store's directory.
func safeID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}

// Put writes data under a freshly minted file ID and returns the resulting
// Object, recording filename/purpose as supplied by the caller.
func (s *Store) Put(data []byte, filename, purpose string) (*Object, error) {
	id := NewFileID()
	if err := s.writeAtomic(id, data); err != nil {
		return nil, err
	}
	return &Object{
		ID:        id,
		Object:    "file",
		Bytes:     int64(len(data)),
		CreatedAt: time.Now().Unix(),
		Filename:  filename,
		Purpose:   purpose,
	}, nil
}

// PutNamed writes data under a caller-supplied id, used when an output or
// error artifact's id is minted ahead of time so the batch record can
// reference it before the file is known to be non-empty.
func (s *Store) PutNamed(id string, data []byte) error {
	if !safeID(id) {
		return fmt.Errorf("blobstore: invalid id %q", id)
	}
	return s.writeAtomic(id, data)
}

// writeAtomic writes data to a temp file in the same directory as id's final
// path and renames it into place, so a concurrent Read or Exists never
// observes a partially written file.
func (s *Store) writeAtomic(id string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, id+".tmp-*")
	if err != nil {
		return fmt.Errorf("blobstore: create temp file for %s: %w", id, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: write %s: %w", id, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: chmod %s: %w", id, err)
	}
	if err := os.Rename(tmpPath, s.Path(id)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: rename %s: %w", id, err)
	}
	return nil
}

// Read returns the full contents of id.
func (s *Store) Read(id string) ([]byte, error) {
	if !safeID(id) {
		return nil, fmt.Errorf("blobstore: invalid id %q", id)
	}
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", id, err)
	}
	return data, nil
}

// Exists reports whether id has a non-empty file on disk.
func (s *Store) Exists(id string) bool {
	if !safeID(id) {
		return false
	}
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Size() > 0
}

// Size returns id's size in bytes, or 0 if it does not exist.
func (s *Store) Size(id string) int64 {
	if !safeID(id) {
		return 0
	}
	info, err := os.Stat(s.Path(id))
	if err != nil {
		return 0
	}
	return info.Size()
}

// Delete removes id if present. Missing files are not an error.
func (s *Store) Delete(id string) error {
	if !safeID(id) {
		return fmt.Errorf("blobstore: invalid id %q", id)
	}
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %s: %w", id, err)
	}
	return nil
}
