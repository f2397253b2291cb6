package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/libranet/apiserver/config"
)

// Cover keys embed a fresh UUID, so stored objects never change.
const objectCacheControl = "public, max-age=31536000, immutable"

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Object is an open object body with its metadata.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend and lays out book cover keys.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// New builds the backend selected by cfg and ensures its bucket exists.
// It returns a nil Storage when no backend is configured.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case "memory":
		backend = NewMemoryBackend("covers")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend), nil
}

// PutCover uploads a cover image for bookID under a fresh key and returns
// the key.
func (s *Storage) PutCover(ctx context.Context, bookID int, r io.Reader, size int64, contentType string) (string, error) {
	key := CoverKey(bookID, contentType)
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (Object, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// CoverExtension returns the file extension for an accepted cover content
// type, or false when the type is not accepted.
func CoverExtension(contentType string) (string, bool) {
	ext, ok := coverExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// CoverKey returns covers/{bookID}/{uuid}{ext}.
func CoverKey(bookID int, contentType string) string {
	ext, _ := CoverExtension(contentType)
	return fmt.Sprintf("covers/%d/%s%s", bookID, uuid.NewString(), ext)
}

// requireSettings fails with the sorted names of every empty setting.
func requireSettings(backend string, settings map[string]string) error {
	var missing []string
	for name, value := range settings {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%s storage: missing %s", backend, strings.Join(missing, ", "))
}
