package server

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// pageCache keeps whole 200 responses for a short time, keyed by the caller
// supplied key. A zero ttl disables it.
type pageCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cachedPage
}

type cachedPage struct {
	header  http.Header
	body    []byte
	expires time.Time
}

func newPageCache(ttl time.Duration) *pageCache {
	return &pageCache{ttl: ttl, now: time.Now, entries: map[string]cachedPage{}}
}

func (c *pageCache) get(key string) (cachedPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[key]
	if !ok {
		return cachedPage{}, false
	}
	if !c.now().Before(p.expires) {
		delete(c.entries, key)
		return cachedPage{}, false
	}
	return p, true
}

func (c *pageCache) set(key string, p cachedPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = p
}

// Clear drops every cached page.
func (c *pageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cachedPage{}
}

func (c *pageCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// wrap serves GET requests from the cache. key returns false for requests that
// must always reach next.
func (c *pageCache) wrap(key func(*http.Request) (string, bool), next http.HandlerFunc) http.HandlerFunc {
	if c.ttl <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next(w, r)
			return
		}
		k, cacheable := key(r)
		if !cacheable {
			next(w, r)
			return
		}
		if p, ok := c.get(k); ok {
			for name, vals := range p.header {
				w.Header()[name] = vals
			}
			w.WriteHeader(http.StatusOK)
			w.Write(p.body)
			return
		}

		rec := &captureWriter{header: http.Header{}, status: http.StatusOK}
		next(rec, r)

		for name, vals := range rec.header {
			w.Header()[name] = vals
		}
		w.WriteHeader(rec.status)
		w.Write(rec.body.Bytes())

		// responses that start a session must not be replayed to others
		if rec.status == http.StatusOK && rec.header.Get("Set-Cookie") == "" {
			c.set(k, cachedPage{
				header:  rec.header.Clone(),
				body:    bytes.Clone(rec.body.Bytes()),
				expires: c.now().Add(c.ttl),
			})
		}
	}
}

// cacheKey caches anonymous views only. Pages for a logged-in viewer carry
// their name and form tokens, and a cookie value alone must not mint new keys.
func (s *Server) cacheKey(r *http.Request) (string, bool) {
	if s.currentUser(r) != nil {
		return "", false
	}
	return r.URL.RequestURI(), true
}

type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
	wrote  bool
}

func (cw *captureWriter) Header() http.Header {
	return cw.header
}

func (cw *captureWriter) WriteHeader(status int) {
	if cw.wrote {
		return
	}
	cw.status = status
	cw.wrote = true
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.wrote = true
	return cw.body.Write(b)
}
