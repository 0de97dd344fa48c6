package storage

import (
	"io"
	"sync/atomic"
)

// CountingReader counts the bytes read through it. Count may be called
// from another goroutine for progress reporting.
type CountingReader struct {
	r    io.Reader
	size atomic.Int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (n int, err error) {
	n, err = c.r.Read(p)
	c.size.Add(int64(n))
	return
}

// Count returns the number of bytes read so far.
func (c *CountingReader) Count() int64 {
	return c.size.Load()
}
