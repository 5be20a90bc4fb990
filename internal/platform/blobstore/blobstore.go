// Package blobstore archives generated report files. It defines the Store
// interface, an in-memory implementation for tests and development, an
// S3-compatible implementation, and admin HTTP handlers for listing and
// downloading archived files.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidKey      = errors.New("invalid blob key")
)

// MaxFileSize is the maximum allowed blob size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

const (
	CategoryDailyReport = "daily-report"
	CategoryExport      = "export"
)

// AllowedCategories lists valid blob category values.
var AllowedCategories = map[string]bool{
	CategoryDailyReport: true,
	CategoryExport:      true,
}

// Metadata describes a stored blob.
type Metadata struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	TenantID    string    `json:"tenant_id"`
	Category    string    `json:"category"`
	Hash        string    `json:"hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the contract for blob storage backends. Put overwrites an
// existing blob with the same key.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Metadata, error)
	List(ctx context.Context, prefix string) ([]*Metadata, error)
	Delete(ctx context.Context, key string) error
}

// ReportKey builds the object key for a tenant's report file.
func ReportKey(tenantID, category, fileName string) string {
	return path.Join("reports", tenantID, category, fileName)
}

// TenantPrefix is the key prefix under which all of a tenant's files live.
func TenantPrefix(tenantID string) string {
	return path.Join("reports", tenantID) + "/"
}

// prepare validates meta, reads content fully and fills in derived fields.
func prepare(meta Metadata, content io.Reader, now time.Time) (Metadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if meta.Key == "" {
		meta.Key = ReportKey(meta.TenantID, meta.Category, meta.FileName)
	}
	if strings.Contains(meta.Key, "..") {
		return meta, nil, ErrInvalidKey
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now.UTC()
	}
	return meta, data, nil
}

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// InMemoryStore is a thread-safe, in-memory Store for testing/dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		blobs: make(map[string]*storedBlob),
	}
}

func (s *InMemoryStore) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content, time.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.Key] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := b.metadata
	return io.NopCloser(bytes.NewReader(b.content)), &meta, nil
}

func (s *InMemoryStore) List(_ context.Context, prefix string) ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Metadata
	for k, b := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			meta := b.metadata
			out = append(out, &meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}
