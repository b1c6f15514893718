// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package payload

import (
	"bytes"
	"testing"
)

func TestBuffer(t *testing.T) {
	buf := New(16)
	if got, want := buf.Size(), 0; got != want {
		t.Fatalf("invalid size: got=%d, want=%d", got, want)
	}
	if !buf.IsEmpty() {
		t.Fatalf("new buffer not empty")
	}

	buf.Add([]byte{1, 2, 3, 4})
	if got, want := buf.Len(), 4; got != want {
		t.Fatalf("invalid len: got=%d, want=%d", got, want)
	}
	if b, ok := buf.Current(); !ok || b != 1 {
		t.Fatalf("invalid current byte: got=(%d,%v), want=(1,true)", b, ok)
	}

	buf.Advance(2)
	if b, ok := buf.Current(); !ok || b != 3 {
		t.Fatalf("invalid current byte after advance: got=(%d,%v)", b, ok)
	}
	if got, want := buf.Bytes(), []byte{3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("invalid window: got=%v, want=%v", got, want)
	}
	if got, want := buf.Size(), 4; got != want {
		t.Fatalf("invalid size: got=%d, want=%d", got, want)
	}

	buf.FillZero(2)
	if got, want := buf.Bytes(), []byte{3, 4, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("invalid window after fill: got=%v, want=%v", got, want)
	}
	if got, want := buf.Tail(3), []byte{4, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("invalid tail: got=%v, want=%v", got, want)
	}

	buf.CompactConsumed()
	if got, want := buf.Size(), 4; got != want {
		t.Fatalf("invalid size after compaction: got=%d, want=%d", got, want)
	}
	if got, want := buf.Bytes(), []byte{3, 4, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("invalid window after compaction: got=%v, want=%v", got, want)
	}

	buf.ShrinkTo(2)
	if got, want := buf.Bytes(), []byte{3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("invalid window after shrink: got=%v, want=%v", got, want)
	}

	buf.Clear()
	if !buf.IsEmpty() || buf.Size() != 0 {
		t.Fatalf("buffer not empty after clear")
	}
}

func TestBufferAdvancePastEnd(t *testing.T) {
	buf := New(8)
	buf.Add([]byte{1, 2, 3})
	buf.Advance(10)
	if !buf.IsEmpty() {
		t.Fatalf("buffer not empty after over-advance")
	}
	if _, ok := buf.Current(); ok {
		t.Fatalf("current byte on empty buffer")
	}
}

func TestBufferEnsureFreeCapacity(t *testing.T) {
	buf := New(4)
	buf.Add([]byte{1, 2, 3, 4})
	buf.Advance(1)
	buf.EnsureFreeCapacity(8)
	if got := buf.FreeCapacity(); got < 8 {
		t.Fatalf("invalid free capacity: got=%d, want>=8", got)
	}
	if got, want := buf.Bytes(), []byte{2, 3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("window lost after growth: got=%v, want=%v", got, want)
	}
}

func TestBufferAppend(t *testing.T) {
	for _, tc := range []struct {
		name string
		cap  int
		src  []byte
		want int
	}{
		{name: "empty-source", cap: 8, src: nil, want: 0},
		{name: "small-source", cap: 8, src: []byte{1, 2, 3}, want: 3},
		{name: "exact-fit", cap: 4, src: []byte{1, 2, 3, 4}, want: 4},
		{name: "overflow", cap: 4, src: []byte{1, 2, 3, 4, 5, 6}, want: 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			buf := New(tc.cap)
			src := bytes.NewReader(tc.src)
			n := buf.Append(func(p []byte) int {
				m, _ := src.Read(p)
				return m
			})
			if n != tc.want {
				t.Fatalf("invalid number of bytes appended: got=%d, want=%d", n, tc.want)
			}
			if got, want := buf.Bytes(), tc.src[:tc.want]; !bytes.Equal(got, want) {
				t.Fatalf("invalid content: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestBufferAppendChunked(t *testing.T) {
	// a source that yields one byte at a time must be drained until
	// the tail is full.
	buf := New(4)
	next := byte(0)
	n := buf.Append(func(p []byte) int {
		next++
		p[0] = next
		return 1
	})
	if n != 4 {
		t.Fatalf("invalid number of bytes appended: got=%d, want=4", n)
	}
	if got, want := buf.Bytes(), []byte{1, 2, 3, 4}; !bytes.Equal(got, want) {
		t.Fatalf("invalid content: got=%v, want=%v", got, want)
	}
}
