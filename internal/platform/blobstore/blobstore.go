// Package blobstore keeps the bytes of uploaded patient files. Records
// describing the files live in the database; a blob is addressed only by
// its id.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidBlobID   = errors.New("invalid blob id")
)

// Stored describes a blob after a successful Put.
type Stored struct {
	ID   string
	Size int64
	Hash string
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, fileName string, content io.Reader) (*Stored, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

var blobIDPattern = regexp.MustCompile(`^[0-9a-f-]{36}$`)

// readLimited reads at most max bytes and computes the content hash.
func readLimited(content io.Reader, max int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(content, max+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > max {
		return nil, "", ErrFileTooLarge
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// ---------------------------------------------------------------------------
// Local disk
// ---------------------------------------------------------------------------

// DiskStore writes each blob to <dir>/<id>.
type DiskStore struct {
	dir     string
	maxSize int64
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

func (s *DiskStore) path(id string) (string, error) {
	if !blobIDPattern.MatchString(id) {
		return "", ErrInvalidBlobID
	}
	return filepath.Join(s.dir, id), nil
}

// Put writes to a temp file and renames it into place so readers never see
// a partial blob.
func (s *DiskStore) Put(_ context.Context, fileName string, content io.Reader) (*Stored, error) {
	if fileName == "" {
		return nil, ErrMissingFileName
	}
	data, hash, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, id)); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	return &Stored{ID: id, Size: int64(len(data)), Hash: hash}, nil
}

func (s *DiskStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete is idempotent: a missing blob is not an error.
func (s *DiskStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

// InMemoryBlobStore is a thread-safe BlobStore for tests and development.
type InMemoryBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	maxSize int64
}

func NewInMemoryBlobStore(maxSize int64) *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string][]byte), maxSize: maxSize}
}

func (s *InMemoryBlobStore) Put(_ context.Context, fileName string, content io.Reader) (*Stored, error) {
	if fileName == "" {
		return nil, ErrMissingFileName
	}
	data, hash, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()
	return &Stored{ID: id, Size: int64(len(data)), Hash: hash}, nil
}

func (s *InMemoryBlobStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
	return nil
}

// Len reports how many blobs are stored.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
