package botguard

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytget/streamproxy/internal/filesystem"
)

// MemoryCache keeps tokens for the lifetime of the process.
type MemoryCache struct {
	mu     sync.Mutex
	tokens map[string]Output
	now    func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: map[string]Output{}, now: time.Now}
}

func (c *MemoryCache) Get(key string) (Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out, ok := c.tokens[key]
	switch {
	case !ok:
		return Output{}, false
	case out.Expired(c.now()):
		delete(c.tokens, key)
		return Output{}, false
	}
	return out, true
}

func (c *MemoryCache) Set(key string, value Output) {
	c.mu.Lock()
	c.tokens[key] = value
	c.mu.Unlock()
}

// FileCache persists tokens under dir on the active filesystem so that
// restarts of the proxy reuse them. Each key maps to one JSON document.
type FileCache struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileCache creates dir if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("botguard: cache directory is empty")
	}
	if err := filesystem.API().MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

func (c *FileCache) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(c.dir, "token-"+hex.EncodeToString(sum[:])+".json")
}

// Get treats unreadable and expired documents as misses and removes them.
func (c *FileCache) Get(key string) (Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs := filesystem.API()
	name := c.path(key)
	raw, err := fs.ReadFile(name)
	if err != nil {
		return Output{}, false
	}

	var out Output
	if json.Unmarshal(raw, &out) != nil || out.Expired(c.now()) {
		_ = fs.Remove(name)
		return Output{}, false
	}
	return out, true
}

// Set writes through a temporary file; failures leave the previous entry.
func (c *FileCache) Set(key string, value Output) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fs := filesystem.API()
	name := c.path(key)
	if fs.WriteFile(name+".part", raw, 0o644) == nil {
		_ = fs.Rename(name+".part", name)
	}
}
