package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Backend is a filesystem implementation of the simpleimage.BlobStore
// interface. The bucket is a directory below BaseDir.
type Backend struct {
	baseDir   string
	bucketDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory holding bucket directories
	Bucket  string // Bucket directory name
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if strings.ContainsAny(config.Bucket, `/\`) || config.Bucket == "." || config.Bucket == ".." {
		return nil, fmt.Errorf("invalid bucket name %q", config.Bucket)
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	base := filepath.Clean(config.BaseDir)
	return &Backend{
		baseDir:   base,
		bucketDir: filepath.Join(base, config.Bucket),
	}, nil
}

// BucketExists reports whether the bucket directory exists
func (b *Backend) BucketExists(ctx context.Context) (bool, error) {
	info, err := os.Stat(b.bucketDir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return false, fmt.Errorf("bucket path %s is not a directory", b.bucketDir)
		}
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	case os.IsPermission(err):
		return false, fmt.Errorf("%w: %v", simpleimage.ErrAccessDenied, err)
	default:
		return false, fmt.Errorf("failed to stat bucket: %w", err)
	}
}

// CreateBucket creates the bucket directory
func (b *Backend) CreateBucket(ctx context.Context) error {
	err := os.Mkdir(b.bucketDir, 0755)
	switch {
	case err == nil:
		return nil
	case os.IsExist(err):
		return simpleimage.ErrBucketAlreadyExists
	case os.IsPermission(err):
		return fmt.Errorf("%w: %v", simpleimage.ErrAccessDenied, err)
	default:
		return fmt.Errorf("failed to create bucket: %w", err)
	}
}

// Put writes content to the filesystem. The file appears atomically.
func (b *Backend) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	filePath, err := b.resolve(key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(b.bucketDir); os.IsNotExist(err) {
		return simpleimage.ErrNoSuchBucket
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short write for %s: wrote %d of %d bytes", key, n, size)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Get opens content from the filesystem
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := b.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, simpleimage.ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return simpleimage.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// resolve maps a key to a path inside the bucket directory
func (b *Backend) resolve(key string) (string, error) {
	filePath := filepath.Join(b.bucketDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.bucketDir, filePath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filePath, nil
}

// cleanupEmptyDirectories recursively removes empty directories up to the bucket directory
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.bucketDir || !strings.HasPrefix(dir, b.bucketDir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
