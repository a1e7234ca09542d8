// Package blobstore stores uploaded lab report files. Uploads are validated
// by extension, sniffed content type and size before anything touches disk.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTooSmall       = errors.New("file too small")
	ErrInvalidContentType = errors.New("file type not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

const (
	// MaxFileSize is the largest accepted upload (5 MB).
	MaxFileSize = 5 * 1024 * 1024
	// MinFileSize rejects empty and truncated uploads.
	MinFileSize = 100
)

// allowedTypes maps an accepted file extension to the content type its bytes
// must sniff as.
var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists validated uploads under generated keys.
type Store interface {
	Put(ctx context.Context, fileName string, content io.Reader) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFileName strips directories and anything outside a conservative
// character set from a client supplied name.
func SafeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

// prepare reads and validates an upload, returning its metadata and bytes.
func prepare(fileName string, content io.Reader, now time.Time) (*Object, []byte, error) {
	safe := SafeFileName(fileName)
	if safe == "" {
		return nil, nil, ErrMissingFileName
	}
	ext := strings.ToLower(filepath.Ext(safe))
	want, ok := allowedTypes[ext]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidContentType, ext)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	if n > MaxFileSize {
		return nil, nil, fmt.Errorf("%w: maximum size is %dMB", ErrFileTooLarge, MaxFileSize/(1024*1024))
	}
	if n < MinFileSize {
		return nil, nil, fmt.Errorf("%w: minimum size is %d bytes", ErrFileTooSmall, MinFileSize)
	}

	data := buf.Bytes()
	sniffed := http.DetectContentType(data)
	if sniffed != want {
		return nil, nil, fmt.Errorf("%w: content is %s", ErrInvalidContentType, sniffed)
	}

	sum := sha256.Sum256(data)
	obj := &Object{
		Key:         fmt.Sprintf("%s_%d%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:16], now.Unix(), ext),
		FileName:    safe,
		ContentType: want,
		Size:        n,
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   now,
	}
	return obj, data, nil
}

// validKey guards Open against path traversal.
func validKey(key string) bool {
	return key != "" && key == SafeFileName(key)
}

// LocalStore writes blobs into a directory on the local filesystem.
type LocalStore struct {
	dir string
	now func() time.Time
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, now: time.Now}, nil
}

func (s *LocalStore) Put(_ context.Context, fileName string, content io.Reader) (*Object, error) {
	obj, data, err := prepare(fileName, content, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.dir, obj.Key), data, 0o600); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	return obj, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrBlobNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// MemoryStore keeps blobs in memory. Used in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, fileName string, content io.Reader) (*Object, error) {
	obj, data, err := prepare(fileName, content, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[obj.Key] = data
	s.mu.Unlock()
	return obj, nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
