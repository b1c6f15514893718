// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chip holds the per-chip pixel data model and the codec for
// the ALPIDE per-cable byte stream.
package chip // import "github.com/go-lpc/alpide/chip"

// Pixel is a fired pixel within a chip.
type Pixel struct {
	Row uint16 // 10-bit row address
	Col uint16 // 10-bit column address
}

// Decoding-error flags recorded in Data.Errors. The low 8 bits preserve
// the offending byte.
const (
	ErrUnexpectedByte uint32 = 0x1 << (8 + iota) // byte did not match any expected word
	ErrTruncatedFrame                            // cable stream ended inside a chip frame
	ErrMissingRegion                             // pixel word seen before any region header
)

// Data holds the pixel records of one chip for one trigger.
type Data struct {
	ChipID  uint16 // chip ID: on-module during decode, global once remapped
	Orbit   uint32 // trigger orbit
	BC      uint16 // trigger bunch crossing
	Trigger uint32 // trigger-type bits
	ROFlags uint8  // readout flags from the chip trailer
	Errors  uint32 // decoding-error flags, 0 when the frame decoded cleanly
	Pixels  []Pixel
}

// Clear resets d, keeping the pixel storage.
func (d *Data) Clear() {
	d.ChipID = 0
	d.Orbit = 0
	d.BC = 0
	d.Trigger = 0
	d.ROFlags = 0
	d.Errors = 0
	d.Pixels = d.Pixels[:0]
}

// Swap exchanges the contents of d and o without copying pixel storage.
func (d *Data) Swap(o *Data) {
	*d, *o = *o, *d
}
