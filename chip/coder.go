// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chip

import (
	"errors"
	"io"
	"sort"

	"github.com/go-lpc/alpide/payload"
)

// ALPIDE word markers. A chip frame is:
//
//	chip-header (2 bytes) | region-header? (data-short|data-long)* ... | chip-trailer (1 byte)
//
// or a 2-byte chip-empty frame. Pixel words address a double column
// through (region, encoder) and a 10-bit priority-encoder address
// within it; a data-long word carries a 7-bit hit map for up to seven
// follow-up pixels of the same row.
const (
	chipHeader   = 0xa0 // 1010<chip id>, followed by the timestamp byte
	chipTrailer  = 0xb0 // 1011<readout flags>
	regionHeader = 0xc0 // 110<region id>
	chipEmpty    = 0xe0 // 1110<chip id>, followed by the timestamp byte

	dataShort = 0x40 // 01<encoder:4><addr:10>
	dataLong  = 0x00 // 00<encoder:4><addr:10> 0<hit map:7>

	maskChipID  = 0x0f
	maskROFlags = 0x0f
	maskRegion  = 0x1f
	maskHitMap  = 0x7f
)

// ErrFormat reports a malformed ALPIDE frame. The offending byte and
// the violation kind are preserved in the Errors field of the chip
// data being decoded.
var ErrFormat = errors.New("chip: invalid ALPIDE word")

// IsChipHeaderOrEmpty reports whether b starts a chip-header or a
// chip-empty frame.
func IsChipHeaderOrEmpty(b byte) bool {
	b &= 0xf0
	return b == chipHeader || b == chipEmpty
}

// Coder encodes and decodes single-chip frames of the ALPIDE per-cable
// byte stream. The zero value is ready to use.
type Coder struct{}

// EncodeChip appends the frame of the chip described by d to the cable
// stream out: pixels sorted by (row, column), coalescing runs of the
// same row with column distance up to 7 into data-long words. An empty
// pixel list yields a chip-empty frame.
func (Coder) EncodeChip(out *payload.Buffer, d *Data, chipInModule uint8, bc uint16) {
	if len(d.Pixels) == 0 {
		Coder{}.AddEmptyChip(out, chipInModule, bc)
		return
	}

	pixels := d.Pixels
	sort.Slice(pixels, func(i, j int) bool {
		if pixels[i].Row != pixels[j].Row {
			return pixels[i].Row < pixels[j].Row
		}
		return pixels[i].Col < pixels[j].Col
	})

	out.Add([]byte{chipHeader | chipInModule&maskChipID, uint8(bc >> 3)})
	region := -1
	for i := 0; i < len(pixels); {
		pix := pixels[i]
		if reg := int(pix.Col >> 5); reg != region {
			out.Add([]byte{regionHeader | uint8(reg&maskRegion)})
			region = reg
		}
		var hitmap uint8
		j := i + 1
		for j < len(pixels) && pixels[j].Row == pix.Row {
			dc := pixels[j].Col - pix.Col
			if dc > 7 {
				break
			}
			if dc > 0 {
				hitmap |= 1 << (dc - 1)
			}
			j++
		}
		var (
			enc  = uint8(pix.Col>>1) & 0x0f
			addr = pix.Row<<1 | ((pix.Row ^ pix.Col) & 0x1)
			hi   = enc<<2 | uint8(addr>>8)
		)
		switch hitmap {
		case 0:
			out.Add([]byte{dataShort | hi, uint8(addr)})
		default:
			out.Add([]byte{dataLong | hi, uint8(addr), hitmap})
		}
		i = j
	}
	out.Add([]byte{chipTrailer | d.ROFlags&maskROFlags})
}

// AddEmptyChip appends a chip-empty frame to the cable stream out.
func (Coder) AddEmptyChip(out *payload.Buffer, chipInModule uint8, bc uint16) {
	out.Add([]byte{chipEmpty | chipInModule&maskChipID, uint8(bc >> 3)})
}

// DecodeChip consumes one chip frame from the cable stream and fills d.
// It returns the number of pixels decoded; 0 with a nil error means a
// chip-empty frame. io.EOF signals an exhausted cable. A malformed
// frame returns ErrFormat after recording the violation (and the
// offending byte) in d.Errors; the cursor is advanced past the
// offending byte so that decoding can resume.
func (Coder) DecodeChip(d *Data, cab *payload.Buffer) (int, error) {
	// zero bytes between chip frames are the tail padding of
	// partially-filled GBT words.
	b0, ok := cab.Current()
	for ok && b0 == 0 {
		cab.Advance(1)
		b0, ok = cab.Current()
	}
	if !ok {
		return 0, io.EOF
	}

	switch b0 & 0xf0 {
	case chipEmpty:
		if cab.Len() < 2 {
			d.Errors |= ErrTruncatedFrame
			cab.Advance(cab.Len())
			return 0, ErrFormat
		}
		buf := cab.Bytes()
		d.ChipID = uint16(b0 & maskChipID)
		d.BC = uint16(buf[1]) << 3
		cab.Advance(2)
		return 0, nil

	case chipHeader:
		// fall through to the frame loop below.
	default:
		d.Errors |= ErrUnexpectedByte | uint32(b0)
		cab.Advance(1)
		return 0, ErrFormat
	}

	if cab.Len() < 2 {
		d.Errors |= ErrTruncatedFrame
		cab.Advance(cab.Len())
		return 0, ErrFormat
	}
	buf := cab.Bytes()
	d.ChipID = uint16(b0 & maskChipID)
	d.BC = uint16(buf[1]) << 3
	cab.Advance(2)

	var (
		region = -1
		npix   = 0
	)
	for {
		b, ok := cab.Current()
		if !ok {
			d.Errors |= ErrTruncatedFrame
			return npix, ErrFormat
		}
		switch {
		case b&0xf0 == chipTrailer:
			d.ROFlags = b & maskROFlags
			cab.Advance(1)
			return npix, nil

		case b&0xe0 == regionHeader:
			region = int(b & maskRegion)
			cab.Advance(1)

		case b&0xc0 == dataShort, b&0xc0 == dataLong:
			n := 2
			if b&0xc0 == dataLong {
				n = 3
			}
			if region < 0 {
				d.Errors |= ErrMissingRegion | uint32(b)
				cab.Advance(1)
				return npix, ErrFormat
			}
			if cab.Len() < n {
				d.Errors |= ErrTruncatedFrame
				cab.Advance(cab.Len())
				return npix, ErrFormat
			}
			w := cab.Bytes()
			var (
				enc  = uint16(w[0]>>2) & 0x0f
				addr = uint16(w[0]&0x3)<<8 | uint16(w[1])
				row  = addr >> 1
				col  = uint16(region)<<5 | enc<<1 | ((addr ^ row) & 0x1)
			)
			d.Pixels = append(d.Pixels, Pixel{Row: row, Col: col})
			npix++
			if n == 3 {
				hitmap := w[2] & maskHitMap
				for k := uint16(0); k < 7; k++ {
					if hitmap&(1<<k) != 0 {
						d.Pixels = append(d.Pixels, Pixel{Row: row, Col: col + 1 + k})
						npix++
					}
				}
			}
			cab.Advance(n)

		default:
			d.Errors |= ErrUnexpectedByte | uint32(b)
			cab.Advance(1)
			return npix, ErrFormat
		}
	}
}
