// Package cache implements the bundle cache: an access-ordered LRU+TTL
// mapping from (path, contentHash) to a compiled artifact. The engine holds
// two buckets with the same policy, one for JS bundles and one for compiled
// CSS, each with its own hit/miss counters.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/anvildev/anvil/internal/hashutil"
)

// Entry is one cached compiled artifact.
type Entry struct {
	Path            string
	ContentHash     string
	Code            string
	CSS             string
	SourceMap       string
	Imports         []string
	NPMDependencies []string
	InsertedAt      time.Time
	LastAccessed    time.Time
	ByteSize        int
}

// Options configures a Cache. Zero values fall back to the defaults of
// 200 entries, 32 MB, and 10 minutes.
type Options struct {
	MaxEntries int
	MaxMemory  int64
	TTL        time.Duration

	// Now is injectable for deterministic TTL tests. Defaults to time.Now.
	Now func() time.Time
}

type keyType struct {
	path string
	hash string
}

type listItem struct {
	key   keyType
	entry Entry
}

// Cache is a single LRU+TTL bucket keyed by (path, contentHash).
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	maxMemory  int64
	ttl        time.Duration
	now        func() time.Time

	order    *list.List // front = most recently accessed
	elements map[keyType]*list.Element
	byPath   map[string]map[keyType]struct{}
	curBytes int64

	hits   int
	misses int
}

// New constructs a Cache with the given options, defaulting zero fields.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 200
	}
	if opts.MaxMemory <= 0 {
		opts.MaxMemory = 32 * 1024 * 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		maxEntries: opts.MaxEntries,
		maxMemory:  opts.MaxMemory,
		ttl:        opts.TTL,
		now:        opts.Now,
		order:      list.New(),
		elements:   make(map[keyType]*list.Element),
		byPath:     make(map[string]map[keyType]struct{}),
	}
}

// GetBundle hashes content, looks up (path, hash), touches LRU position and
// lastAccessed on a hit, and deletes-and-misses on TTL expiry.
func (c *Cache) GetBundle(path, content string) (Entry, bool) {
	key := keyType{path: path, hash: hashutil.Hash(content)}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elements[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}

	item := el.Value.(*listItem)
	if c.now().Sub(item.entry.InsertedAt) > c.ttl {
		c.removeElementLocked(el)
		c.misses++
		return Entry{}, false
	}

	item.entry.LastAccessed = c.now()
	c.order.MoveToFront(el)
	c.hits++
	return item.entry, true
}

// SetBundle inserts a new entry, evicting the least-recently-accessed
// entries until both the count and memory caps are satisfied.
func (c *Cache) SetBundle(path, content, code string, opts Entry) {
	hash := hashutil.Hash(content)
	key := keyType{path: path, hash: hash}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		c.removeElementLocked(el)
	}

	now := c.now()
	entry := Entry{
		Path:            path,
		ContentHash:     hash,
		Code:            code,
		CSS:             opts.CSS,
		SourceMap:       opts.SourceMap,
		Imports:         opts.Imports,
		NPMDependencies: opts.NPMDependencies,
		InsertedAt:      now,
		LastAccessed:    now,
		ByteSize:        byteSize(code, opts.CSS, opts.SourceMap),
	}

	el := c.order.PushFront(&listItem{key: key, entry: entry})
	c.elements[key] = el
	if c.byPath[path] == nil {
		c.byPath[path] = make(map[keyType]struct{})
	}
	c.byPath[path][key] = struct{}{}
	c.curBytes += int64(entry.ByteSize)

	c.evictLocked()
}

func byteSize(parts ...string) int {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	return n
}

// evictLocked removes the least-recently-accessed entries (back of the
// list) until both caps are satisfied. Ties are broken by insertion order,
// which container/list already preserves.
func (c *Cache) evictLocked() {
	for c.order.Len() > c.maxEntries || c.curBytes > c.maxMemory {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElementLocked(back)
	}
}

func (c *Cache) removeElementLocked(el *list.Element) {
	item := el.Value.(*listItem)
	c.order.Remove(el)
	delete(c.elements, item.key)
	c.curBytes -= int64(item.entry.ByteSize)

	if keys := c.byPath[item.key.path]; keys != nil {
		delete(keys, item.key)
		if len(keys) == 0 {
			delete(c.byPath, item.key.path)
		}
	}
}

// InvalidateBundle removes every entry whose path matches, regardless of
// content hash.
func (c *Cache) InvalidateBundle(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.byPath[path]
	removed := 0
	for key := range keys {
		if el, ok := c.elements[key]; ok {
			c.removeElementLocked(el)
			removed++
		}
	}
	return removed
}

// InvalidateDependents removes entries whose stored Imports include path,
// returning the count removed.
func (c *Cache) InvalidateDependents(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		item := el.Value.(*listItem)
		for _, imp := range item.entry.Imports {
			if imp == path {
				toRemove = append(toRemove, el)
				break
			}
		}
	}
	for _, el := range toRemove {
		c.removeElementLocked(el)
	}
	return len(toRemove)
}

// HasBundle reports whether (path, content) currently hits the cache,
// without mutating LRU position or stats.
func (c *Cache) HasBundle(path, content string) bool {
	key := keyType{path: path, hash: hashutil.Hash(content)}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elements[key]
	if !ok {
		return false
	}
	item := el.Value.(*listItem)
	return c.now().Sub(item.entry.InsertedAt) <= c.ttl
}

// Clear empties the cache and resets stats counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = list.New()
	c.elements = make(map[keyType]*list.Element)
	c.byPath = make(map[string]map[keyType]struct{})
	c.curBytes = 0
	c.hits = 0
	c.misses = 0
}

// Stats is the bucket's hit/miss/entry-count summary.
type Stats struct {
	Entries int
	Hits    int
	Misses  int
}

// GetStats returns the current bucket statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}

// GetCachedPaths returns every distinct path currently holding at least one
// cached entry.
func (c *Cache) GetCachedPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.byPath))
	for p := range c.byPath {
		paths = append(paths, p)
	}
	return paths
}
