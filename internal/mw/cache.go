package mw

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheHeader reports whether a response was replayed ("HIT") or produced by
// the handler ("MISS").
const CacheHeader = "X-Cache"

// ResponseCache replays successful GET responses for a short TTL. Keys ignore
// query parameter order. A request carrying Cache-Control: no-cache always
// reaches the handler and refreshes the entry.
type ResponseCache struct {
	entries *cache.Cache
	ttl     time.Duration
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{entries: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Flush drops every stored response.
func (rc *ResponseCache) Flush() {
	rc.entries.Flush()
}

// Len returns the number of stored responses, expired ones included until the
// next cleanup.
func (rc *ResponseCache) Len() int {
	return rc.entries.ItemCount()
}

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

// capture tees the handler's body into buf.
type capture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *capture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capture) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func requestKey(u *url.URL) string {
	return u.Path + "?" + u.Query().Encode()
}

func bypass(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache")
}

// Middleware serves stored responses and records new 2xx ones.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := requestKey(c.Request.URL)
		if !bypass(c.Request) {
			if v, ok := rc.entries.Get(key); ok {
				rc.replay(c, v.(snapshot))
				return
			}
		}

		c.Header(CacheHeader, "MISS")
		w := &capture{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if status := w.Status(); status >= http.StatusOK && status < http.StatusMultipleChoices {
			header := w.Header().Clone()
			header.Del(CacheHeader)
			rc.entries.Set(key, snapshot{status: status, header: header, body: w.buf.Bytes()}, rc.ttl)
		}
	}
}

func (rc *ResponseCache) replay(c *gin.Context, s snapshot) {
	dst := c.Writer.Header()
	for k, v := range s.header {
		dst[k] = append([]string(nil), v...)
	}
	dst.Set(CacheHeader, "HIT")
	c.Writer.WriteHeader(s.status)
	c.Writer.Write(s.body)
	c.Abort()
}

// Cache is a middleware for in-memory caching of successful GET responses.
func Cache(ttl time.Duration) gin.HandlerFunc {
	return NewResponseCache(ttl).Middleware()
}
