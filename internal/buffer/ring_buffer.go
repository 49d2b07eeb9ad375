// Package buffer provides the bounded output buffer kept for each terminal session.
package buffer

import (
	"sync"
	"unicode/utf8"
)

// RingBuffer keeps the most recent bytes written to it, up to a fixed
// limit. It is safe for concurrent use.
//
// Storage grows with the data until the limit is reached and is then reused
// in place: once full, each write overwrites the oldest bytes.
type RingBuffer struct {
	mu      sync.RWMutex
	buf     []byte
	limit   int
	head    int // index of the oldest byte once buf has reached limit
	size    int
	dropped int64
}

// NewRingBuffer returns a buffer holding at most limit bytes. Non-positive
// limits are raised to 1.
func NewRingBuffer(limit int) *RingBuffer {
	if limit <= 0 {
		limit = 1
	}
	return &RingBuffer{
		buf:   make([]byte, 0, min(limit, 4096)),
		limit: limit,
	}
}

// Write implements io.Writer. It never fails; bytes beyond the limit push
// out the oldest ones.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(p) >= rb.limit {
		rb.dropped += int64(rb.size + len(p) - rb.limit)
		rb.grow()
		copy(rb.buf, p[len(p)-rb.limit:])
		rb.head, rb.size = 0, rb.limit
		return len(p), nil
	}

	// Still filling up: plain append.
	if len(rb.buf) < rb.limit && rb.size+len(p) <= rb.limit {
		rb.buf = append(rb.buf, p...)
		rb.size += len(p)
		return len(p), nil
	}

	rb.grow()
	if over := rb.size + len(p) - rb.limit; over > 0 {
		rb.head = (rb.head + over) % rb.limit
		rb.size -= over
		rb.dropped += int64(over)
	}

	tail := (rb.head + rb.size) % rb.limit
	n := copy(rb.buf[tail:], p)
	copy(rb.buf, p[n:])
	rb.size += len(p)

	return len(p), nil
}

// grow extends buf to its full length. Bytes past size are free space.
func (rb *RingBuffer) grow() {
	if len(rb.buf) == rb.limit {
		return
	}
	if cap(rb.buf) >= rb.limit {
		rb.buf = rb.buf[:rb.limit]
		return
	}
	full := make([]byte, rb.limit)
	copy(full, rb.buf[:rb.size])
	rb.buf = full
}

// WriteString appends s to the buffer.
func (rb *RingBuffer) WriteString(s string) (int, error) {
	return rb.Write([]byte(s))
}

func (rb *RingBuffer) linearize() []byte {
	out := make([]byte, rb.size)
	n := copy(out, rb.buf[rb.head:min(rb.head+rb.size, len(rb.buf))])
	copy(out[n:], rb.buf[:rb.size-n])
	return out
}

// Text returns the buffered bytes as a string. Once bytes have been
// dropped the oldest character may be cut in half; its stray continuation
// bytes are skipped so the text starts on a rune boundary.
func (rb *RingBuffer) Text() string {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return ""
	}
	data := rb.linearize()
	if rb.dropped > 0 {
		skip := 0
		for skip < utf8.UTFMax && skip < len(data) && !utf8.RuneStart(data[skip]) {
			skip++
		}
		data = data[skip:]
	}
	return string(data)
}

// Cap returns the byte limit.
func (rb *RingBuffer) Cap() int {
	return rb.limit
}

// Discarded returns how many bytes have been pushed out since creation.
func (rb *RingBuffer) Discarded() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.dropped
}
