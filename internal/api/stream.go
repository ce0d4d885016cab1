package api

import (
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// feedSize bounds how many undelivered events a stream client may fall behind.
const feedSize = 64

// feed queues every published value for one stream client in order. A client
// that falls feedSize events behind is cut off instead of silently skipping.
type feed[T any] struct {
	ch       chan T
	overflow chan struct{}
	once     sync.Once
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{ch: make(chan T, feedSize), overflow: make(chan struct{})}
}

func (f *feed[T]) put(v T) {
	select {
	case f.ch <- v:
	default:
		f.once.Do(func() { close(f.overflow) })
	}
}

func startStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// stream writes first, then every value from f in order until the request
// ends, the client overflows its feed, or done reports true for a written
// value. Comment lines keep idle proxies open.
func stream[T any](c *gin.Context, keepAlive time.Duration, first T, f *feed[T], done func(T) bool) {
	startStream(c)
	c.SSEvent("message", first)
	c.Writer.Flush()
	if done != nil && done(first) {
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-f.overflow:
			log.Printf("SSE client fell %d events behind; closing stream", feedSize)
			return
		case v := <-f.ch:
			c.SSEvent("message", v)
			c.Writer.Flush()
			if done != nil && done(v) {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
