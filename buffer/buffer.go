// Package buffer implements the bounded byte FIFO used by every channel's
// RX and TX sides: a fixed-capacity contiguous region with zero-copy
// producer/consumer spans.
package buffer

import "io"

// Bounded is a fixed-capacity byte FIFO. Readable bytes always live at
// offset [0, used) — consume() compacts the live region back to the front
// by block move, so the writable region is always the contiguous tail.
type Bounded struct {
	data []byte
	used int
}

// New allocates a Bounded buffer with the given fixed capacity.
func New(capacity int) *Bounded {
	return &Bounded{data: make([]byte, capacity)}
}

// Capacity returns the capacity fixed by New; it never changes afterwards.
func (b *Bounded) Capacity() int { return len(b.data) }

// Used returns the number of readable bytes currently buffered.
func (b *Bounded) Used() int { return b.used }

// Free returns the remaining writable capacity.
func (b *Bounded) Free() int { return len(b.data) - b.used }

// Empty reports whether the buffer holds no readable bytes.
func (b *Bounded) Empty() bool { return b.used == 0 }

// Full reports whether the buffer has no remaining write capacity.
func (b *Bounded) Full() bool { return b.used == len(b.data) }

// WriteFrom copies min(len(src), Free()) bytes from src and returns the
// count copied. It never reallocates and never blocks.
func (b *Bounded) WriteFrom(src []byte) int {
	n := len(src)
	if f := b.Free(); n > f {
		n = f
	}
	copy(b.data[b.used:b.used+n], src[:n])
	b.used += n
	return n
}

// ReadInto copies min(len(dst), Used()) bytes into dst, consuming them, and
// returns the count copied.
func (b *Bounded) ReadInto(dst []byte) int {
	src := b.ReadableSpan(len(dst))
	n := copy(dst, src)
	b.Consume(n)
	return n
}

// WritableSpan returns a contiguous region of length min(max, Free()) at the
// write cursor. Must be paired with exactly one Commit(k<=len(span)) before
// the next producer call — the span is invalidated by any other mutation.
func (b *Bounded) WritableSpan(max int) []byte {
	if f := b.Free(); max > f {
		max = f
	}
	return b.data[b.used : b.used+max]
}

// Commit advances Used() by n, finalizing a prior WritableSpan write.
func (b *Bounded) Commit(n int) {
	if n < 0 || b.used+n > len(b.data) {
		panic("buffer: commit exceeds writable span")
	}
	b.used += n
}

// ReadableSpan returns a contiguous region of length min(max, Used()) at
// offset 0. It may be consumed in full, in part, or not at all.
func (b *Bounded) ReadableSpan(max int) []byte {
	if max > b.used {
		max = b.used
	}
	return b.data[:max]
}

// Consume drops the first n readable bytes, compacting the remainder to
// offset 0. n==0 is a no-op; n is clamped to Used().
func (b *Bounded) Consume(n int) {
	if n == 0 {
		return
	}
	if n > b.used {
		n = b.used
	}
	remaining := b.used - n
	copy(b.data[:remaining], b.data[n:b.used])
	b.used = remaining
}

// Clear discards all readable bytes without touching capacity.
func (b *Bounded) Clear() { b.used = 0 }

// Write implements io.Writer over WriteFrom's existing truncate-on-overflow
// semantics: it never errors and never panics, even when p overflows the
// remaining capacity — the excess is simply not copied.
func (b *Bounded) Write(p []byte) (int, error) {
	return b.WriteFrom(p), nil
}

// Read implements io.Reader over ReadInto, reporting io.EOF once the
// buffer holds nothing left to read — the same convention bytes.Buffer
// uses for an exhausted source.
func (b *Bounded) Read(p []byte) (int, error) {
	if b.Empty() && len(p) > 0 {
		return 0, io.EOF
	}
	return b.ReadInto(p), nil
}

var (
	_ io.Writer = (*Bounded)(nil)
	_ io.Reader = (*Bounded)(nil)
)
