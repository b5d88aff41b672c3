// Package cache holds the named HTTP response caches used by the request
// router.
//
// Each cache has its own expiration settings. An entry is fresh until it is
// older than MaxAge, stale afterwards, and evicted the next time it is
// looked up or when the cache is pruned. When a cache grows past MaxEntries
// its oldest entries are evicted. Bodies are kept snappy-compressed.
package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/timex"
	"github.com/golang/snappy"
)

// Config configures one named cache. Zero MaxEntries or MaxAge means
// unbounded.
type Config struct {
	Name       string
	MaxEntries int
	MaxAge     time.Duration
}

type entry struct {
	status   int
	header   http.Header
	body     []byte // snappy encoded
	storedAt time.Time
}

// Cache is a single named response cache. Safe for concurrent use.
type Cache struct {
	cfg   Config
	clock timex.Clock

	mu      sync.Mutex
	entries map[string]*entry
}

func (c *Cache) Name() string { return c.cfg.Name }

func (c *Cache) expired(e *entry, now time.Time) bool {
	return c.cfg.MaxAge > 0 && now.Sub(e.storedAt) > c.cfg.MaxAge
}

// Match returns a fresh copy of the response cached under key. A stale
// entry is evicted and reported as a miss.
func (c *Cache) Match(req *http.Request, key string) (*http.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(e, c.clock.Now()) {
		delete(c.entries, key)
		return nil, false
	}

	body, err := snappy.Decode(nil, e.body)
	if err != nil {
		delete(c.entries, key)
		return nil, false
	}
	resp := NewResponse(req, e.status, e.header.Clone(), body)
	resp.Header.Set("Age", strconv.Itoa(int(c.clock.Now().Sub(e.storedAt).Seconds())))
	return resp, true
}

// Put stores body with the status and header of resp under key. The caller
// keeps ownership of resp; its body is not read.
func (c *Cache) Put(key string, resp *http.Response, body []byte) {
	e := &entry{
		status:   resp.StatusCode,
		header:   resp.Header.Clone(),
		body:     snappy.Encode(nil, body),
		storedAt: c.clock.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
	c.enforceLimit()
}

// enforceLimit evicts the oldest entries beyond MaxEntries. Caller holds mu.
func (c *Cache) enforceLimit() {
	if c.cfg.MaxEntries <= 0 || len(c.entries) <= c.cfg.MaxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].storedAt.Before(c.entries[keys[j]].storedAt)
	})
	for _, k := range keys[:len(keys)-c.cfg.MaxEntries] {
		delete(c.entries, k)
	}
}

// Prune evicts every stale entry and returns how many were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Caches is the set of named caches.
type Caches struct {
	clock timex.Clock

	mu     sync.Mutex
	caches map[string]*Cache
}

func NewCaches(clock timex.Clock) *Caches {
	return &Caches{clock: timex.OrReal(clock), caches: make(map[string]*Cache)}
}

// Open returns the cache named cfg.Name, creating it if needed. Expiration
// settings of an existing cache are replaced by cfg.
func (cs *Caches) Open(cfg Config) *Cache {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	c, ok := cs.caches[cfg.Name]
	if !ok {
		c = &Cache{clock: cs.clock, entries: make(map[string]*entry)}
		cs.caches[cfg.Name] = c
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return c
}

// Get returns an already opened cache.
func (cs *Caches) Get(name string) (*Cache, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.caches[name]
	return c, ok
}

// Sizes reports the entry count of every cache after pruning stale entries.
func (cs *Caches) Sizes() map[string]int {
	cs.mu.Lock()
	list := make([]*Cache, 0, len(cs.caches))
	for _, c := range cs.caches {
		list = append(list, c)
	}
	cs.mu.Unlock()

	out := make(map[string]int, len(list))
	for _, c := range list {
		c.Prune()
		out[c.Name()] = c.Len()
	}
	return out
}

// Invalidate removes key from every cache.
func (cs *Caches) Invalidate(key string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.caches {
		c.Delete(key)
	}
}

// Clear drops every entry of every cache.
func (cs *Caches) Clear() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.caches {
		c.mu.Lock()
		c.entries = make(map[string]*entry)
		c.mu.Unlock()
	}
}

// NewResponse builds a complete in-memory response to req.
func NewResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
