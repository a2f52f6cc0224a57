package cache

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spectravue/emit-unmix/internal/properties"
)

type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type CacheService[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
	GenerateKey(params ...interface{}) string
}

// FileCache persists small JSON-serializable values, keyed by hash. Used for
// the short-lived credential response between pipeline runs.
type FileCache[T any] struct {
	cacheDir string
	// maxAge bounds entry freshness; zero means entries never expire.
	maxAge time.Duration
}

func NewFileCache[T any](subDir string) *FileCache[T] {
	cacheDir := filepath.Join(properties.RootPath()+"/data", subDir)
	return &FileCache[T]{
		cacheDir: cacheDir,
	}
}

// NewExpiringFileCache builds a cache whose entries go stale after maxAge.
func NewExpiringFileCache[T any](subDir string, maxAge time.Duration) *FileCache[T] {
	fc := NewFileCache[T](subDir)
	fc.maxAge = maxAge
	return fc
}

func (fc *FileCache[T]) GenerateKey(params ...interface{}) string {
	var keyData string
	for _, param := range params {
		keyData += fmt.Sprintf("%v_", param)
	}
	h := sha1.New()
	h.Write([]byte(keyData))
	return hex.EncodeToString(h.Sum(nil))
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	var zero T
	cacheFile := filepath.Join(fc.cacheDir, key+".json")

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return zero, false
	}

	var entry CacheEntry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}

	if fc.maxAge > 0 && time.Since(entry.CreatedAt) > fc.maxAge {
		return zero, false
	}

	expectedChecksum := fc.calculateChecksum(entry.Data)
	if entry.Checksum != expectedChecksum {
		return zero, false
	}

	return entry.Data, true
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %v", err)
	}

	entry := CacheEntry[T]{
		Data:      data,
		CreatedAt: time.Now(),
		Checksum:  fc.calculateChecksum(data),
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %v", err)
	}

	cacheFile := filepath.Join(fc.cacheDir, key+".json")
	tmpFile := cacheFile + ".tmp"

	if err := os.WriteFile(tmpFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %v", err)
	}

	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %v", err)
	}

	return nil
}

func (fc *FileCache[T]) calculateChecksum(data T) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return hex.EncodeToString(hash[:])
}

// BlobCache keeps large opaque files (downloaded granules) on disk, keyed by
// their source path. Filling happens through a temp file and rename so a
// killed download never leaves a truncated entry behind.
type BlobCache struct {
	cacheDir string
}

func NewBlobCache(subDir string) *BlobCache {
	return &BlobCache{cacheDir: filepath.Join(properties.RootPath()+"/data", subDir)}
}

func (bc *BlobCache) key(sourcePath string) string {
	h := sha1.New()
	h.Write([]byte(sourcePath))
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the local file for sourcePath and whether it already exists.
func (bc *BlobCache) Path(sourcePath string) (string, bool) {
	p := filepath.Join(bc.cacheDir, bc.key(sourcePath)+filepath.Ext(sourcePath))
	_, err := os.Stat(p)
	return p, err == nil
}

// Fill streams content into the cache entry for sourcePath and returns the
// local path.
func (bc *BlobCache) Fill(sourcePath string, r io.Reader) (string, error) {
	if err := os.MkdirAll(bc.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %v", err)
	}
	p, _ := bc.Path(sourcePath)
	tmp := p + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create temp cache file: %v", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to fill cache entry: %v", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename temp cache file: %v", err)
	}
	return p, nil
}
