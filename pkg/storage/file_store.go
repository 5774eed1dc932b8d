package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidKey is returned for keys that would escape the bucket directory.
var ErrInvalidKey = errors.New("invalid object key")

// FileStore keeps a bucket as a directory on local disk. Files are expected
// to be served under {baseURL}/files/{bucket}/.
type FileStore struct {
	dir     string
	bucket  string
	baseURL string
}

// NewFileStore creates the bucket directory if missing.
func NewFileStore(basePath, bucket, publicBaseURL string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	dir := filepath.Join(basePath, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: dir, bucket: bucket, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Put writes the object to disk.
func (f *FileStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	target, err := f.path(key)
	if err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Get opens the object for reading.
func (f *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	target, err := f.path(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, fmt.Errorf("open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return file, fileInfo(stat), nil
}

// List returns up to limit objects in key order.
func (f *FileStore) List(ctx context.Context, limit int) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var out []ObjectInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, fileInfo(stat))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes the object. Missing files are ignored.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	target, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// PublicURL returns the URL the files handler serves key under.
func (f *FileStore) PublicURL(key string) string {
	return f.baseURL + "/files/" + f.bucket + "/" + url.PathEscape(key)
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", ErrInvalidKey
	}
	return filepath.Join(f.dir, key), nil
}

func fileInfo(stat os.FileInfo) ObjectInfo {
	return ObjectInfo{
		Key:          stat.Name(),
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
		ContentType:  mime.TypeByExtension(filepath.Ext(stat.Name())),
	}
}
