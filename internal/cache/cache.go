package cache

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// CachedRender represents a rendered message body
type CachedRender struct {
	Output    string
	Timestamp time.Time
}

// GenerateCacheKey generates a cache key from the render mode, the wrap
// width and the raw content
func GenerateCacheKey(mode string, width int, content string) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte(strconv.Itoa(width)))
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Renders memoizes terminal output for message bodies. Message content is
// append-only so entries never go stale; once maxEntries is reached the
// whole map is dropped.
type Renders struct {
	entries    sync.Map
	size       atomic.Int64
	maxEntries int64
}

// NewRenders creates a render cache holding at most maxEntries outputs
func NewRenders(maxEntries int) *Renders {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &Renders{maxEntries: int64(maxEntries)}
}

// Get returns the cached output for key
func (r *Renders) Get(key string) (string, bool) {
	if val, ok := r.entries.Load(key); ok {
		return val.(CachedRender).Output, true
	}
	return "", false
}

// Store caches output under key
func (r *Renders) Store(key, output string) {
	if r.size.Load() >= r.maxEntries {
		r.Clear()
	}
	if _, loaded := r.entries.LoadOrStore(key, CachedRender{Output: output, Timestamp: time.Now()}); !loaded {
		r.size.Add(1)
	}
}

// GetOrRender returns the cached output for key, calling render and caching
// its result on a miss. Render errors are not cached.
func (r *Renders) GetOrRender(key string, render func() (string, error)) (string, error) {
	if out, ok := r.Get(key); ok {
		return out, nil
	}
	out, err := render()
	if err != nil {
		return "", err
	}
	r.Store(key, out)
	return out, nil
}

// Clear drops every entry
func (r *Renders) Clear() {
	r.entries.Range(func(k, _ any) bool {
		r.entries.Delete(k)
		return true
	})
	r.size.Store(0)
}

// Len returns the number of cached outputs
func (r *Renders) Len() int {
	return int(r.size.Load())
}
