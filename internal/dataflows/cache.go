package dataflows

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache stores tool payloads keyed by CacheKey. Implementations must be safe
// for concurrent use across runs.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CacheKey derives a stable key from a source, a method and its parameters.
func CacheKey(source, method string, params any) string {
	data, _ := json.Marshal(params)
	hash := md5.Sum(data)
	return fmt.Sprintf("%s_%s_%x", source, method, hash)
}

// FileCache handles file-based caching for data
type FileCache struct {
	cacheDir string
	ttl      time.Duration
}

// NewFileCache creates a file cache rooted at cacheDir. A zero ttl never expires.
func NewFileCache(cacheDir string, ttl time.Duration) *FileCache {
	return &FileCache{
		cacheDir: cacheDir,
		ttl:      ttl,
	}
}

func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}

type cacheEntry struct {
	Value    string    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Get retrieves data from cache if not expired
func (fc *FileCache) Get(_ context.Context, key string) (string, bool, error) {
	filePath := fc.path(key)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read cache %s: %w", key, err)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(filePath)
		return "", false, nil
	}
	if fc.ttl > 0 && time.Since(entry.StoredAt) > fc.ttl {
		_ = os.Remove(filePath) // Remove expired cache
		return "", false, nil
	}
	return entry.Value, true, nil
}

// Set stores data in cache
func (fc *FileCache) Set(_ context.Context, key, value string) error {
	if err := os.MkdirAll(fc.cacheDir, 0o755); err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(cacheEntry{Value: value, StoredAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}

	// write through a temp file so concurrent readers never see a partial entry
	tmp, err := os.CreateTemp(fc.cacheDir, "entry-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fc.path(key))
}
