// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package payload provides a refillable byte container with a consume
// cursor, used to stage raw CRU data between a pull source and the
// decoding state machines.
package payload // import "github.com/go-lpc/alpide/payload"

// Buffer is a byte container split in two regions by a consume cursor:
// bytes before the cursor have been consumed, bytes after it are still
// to be processed. New data is booked at the tail.
//
// CompactConsumed and any operation that grows the backing array past
// its capacity (Add, FillZero, Reserve, EnsureFreeCapacity) invalidate
// slices previously returned by Bytes or Tail. Advance, Current,
// ShrinkTo and Append, which only fills the existing capacity, never do.
type Buffer struct {
	buf []byte
	pos int
}

// New returns a buffer with capacity for n bytes.
func New(n int) *Buffer {
	return &Buffer{buf: make([]byte, 0, n)}
}

// Size returns the total number of booked bytes, consumed or not.
func (b *Buffer) Size() int { return len(b.buf) }

// Len returns the number of booked bytes not yet consumed.
func (b *Buffer) Len() int { return len(b.buf) - b.pos }

// IsEmpty reports whether all booked bytes have been consumed.
func (b *Buffer) IsEmpty() bool { return b.pos >= len(b.buf) }

// Bytes returns the window of not-yet-consumed bytes.
func (b *Buffer) Bytes() []byte { return b.buf[b.pos:] }

// Tail returns the last n booked bytes.
func (b *Buffer) Tail(n int) []byte { return b.buf[len(b.buf)-n:] }

// Current returns the byte under the cursor, if any.
func (b *Buffer) Current() (byte, bool) {
	if b.pos >= len(b.buf) {
		return 0, false
	}
	return b.buf[b.pos], true
}

// Advance moves the consume cursor n bytes forward.
func (b *Buffer) Advance(n int) {
	b.pos += n
	if b.pos > len(b.buf) {
		b.pos = len(b.buf)
	}
}

// Add books the bytes of p at the tail.
func (b *Buffer) Add(p []byte) {
	b.buf = append(b.buf, p...)
}

// FillZero books n zero bytes at the tail.
func (b *Buffer) FillZero(n int) {
	for i := 0; i < n; i++ {
		b.buf = append(b.buf, 0)
	}
}

// FreeCapacity returns the number of bytes that can be booked without
// reallocation.
func (b *Buffer) FreeCapacity() int { return cap(b.buf) - len(b.buf) }

// EnsureFreeCapacity grows the backing array, if needed, so that at
// least n bytes can be booked without reallocation.
func (b *Buffer) EnsureFreeCapacity(n int) {
	if b.FreeCapacity() >= n {
		return
	}
	buf := make([]byte, len(b.buf), len(b.buf)+n)
	copy(buf, b.buf)
	b.buf = buf
}

// Reserve grows the backing array to a total capacity of at least n bytes.
func (b *Buffer) Reserve(n int) {
	if cap(b.buf) >= n {
		return
	}
	buf := make([]byte, len(b.buf), n)
	copy(buf, b.buf)
	b.buf = buf
}

// Append repeatedly pulls bytes from src into the unused tail until src
// yields zero or the tail is full, and returns the number of bytes booked.
func (b *Buffer) Append(src func(p []byte) int) int {
	tot := 0
	for len(b.buf) < cap(b.buf) {
		n := src(b.buf[len(b.buf):cap(b.buf)])
		if n <= 0 {
			break
		}
		b.buf = b.buf[:len(b.buf)+n]
		tot += n
	}
	return tot
}

// CompactConsumed drops the consumed head, moving the unconsumed bytes
// to the front of the backing array.
func (b *Buffer) CompactConsumed() {
	if b.pos == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.pos:])
	b.buf = b.buf[:n]
	b.pos = 0
}

// Clear drops all booked bytes, keeping the backing array.
func (b *Buffer) Clear() {
	b.buf = b.buf[:0]
	b.pos = 0
}

// ShrinkTo truncates the booked bytes to a total size of n.
func (b *Buffer) ShrinkTo(n int) {
	if n < 0 || n > len(b.buf) {
		return
	}
	b.buf = b.buf[:n]
	if b.pos > n {
		b.pos = n
	}
}
