// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cru

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	flagDataHeader  = 0xe0 // GBT payload header marker
	flagDataTrailer = 0xf0 // GBT payload trailer marker

	maskCableID = 0x1f
	maskLanes   = 0x0fffffff
)

// Packet states reported by a GBT data trailer. The trailer carries a
// bitfield over these states, so the packet-state histogram has
// MaxStateCombinations slots.
const (
	PacketEmpty = iota // no lane data in this packet
	PacketSplit        // lane data continues on the next page
	PacketTimeout      // a lane timed out
	PacketDone         // lane packet completed

	NStatesDefined
	MaxStateCombinations = 0x1 << NStatesDefined
)

// A GBT word is 80 bits: 9 payload bytes and one flag byte (byte 9).
// When the transport pads words to 128 bits, six zero bytes follow; the
// flag tests and field accessors below only read the 10 leading bytes,
// so callers choose the stride (WordLen or PaddedWordLen) and pass the
// word head. The encoders zero the whole slice they are given.
//
// Data header: bytes 0-3 hold the 28-bit lane mask, bytes 4-5 the
// packet ID. Data trailer: bytes 0-3 hold lanes-stop, bytes 4-7
// lanes-timeout, byte 8 the packet state. Payload words carry the cable
// flag byte (RU-type marker | cable HW ID) in byte 9.

// IsDataHeader reports whether w is a GBT data header.
func IsDataHeader(w []byte) bool { return w[9] == flagDataHeader }

// IsDataTrailer reports whether w is a GBT data trailer.
func IsDataTrailer(w []byte) bool { return w[9] == flagDataTrailer }

// PacketID returns the packet counter of the data header w.
func PacketID(w []byte) uint16 { return binary.LittleEndian.Uint16(w[4:6]) }

// Lanes returns the lane mask declared by the data header w.
func Lanes(w []byte) uint32 { return binary.LittleEndian.Uint32(w[0:4]) & maskLanes }

// LanesStop returns the stopped-lanes mask of the data trailer w.
func LanesStop(w []byte) uint32 { return binary.LittleEndian.Uint32(w[0:4]) & maskLanes }

// LanesTimeout returns the timed-out-lanes mask of the data trailer w.
func LanesTimeout(w []byte) uint32 { return binary.LittleEndian.Uint32(w[4:8]) & maskLanes }

// PacketState returns the packet-state bitfield of the data trailer w.
func PacketState(w []byte) int { return int(w[8]) & (MaxStateCombinations - 1) }

// CableID returns the cable HW ID of the payload word w.
func CableID(w []byte) uint8 { return w[9] & maskCableID }

// EncodeDataHeader fills w with a GBT data header.
func EncodeDataHeader(w []byte, packetID uint16, lanes uint32) {
	for i := range w {
		w[i] = 0
	}
	binary.LittleEndian.PutUint32(w[0:4], lanes&maskLanes)
	binary.LittleEndian.PutUint16(w[4:6], packetID)
	w[9] = flagDataHeader
}

// EncodeDataTrailer fills w with a GBT data trailer.
func EncodeDataTrailer(w []byte, lanesStop, lanesTimeout uint32, state uint8) {
	for i := range w {
		w[i] = 0
	}
	binary.LittleEndian.PutUint32(w[0:4], lanesStop&maskLanes)
	binary.LittleEndian.PutUint32(w[4:8], lanesTimeout&maskLanes)
	w[8] = state & (MaxStateCombinations - 1)
	w[9] = flagDataTrailer
}

// PrintWord writes a hex dump of the GBT word at the head of p to w,
// accounting for the optional 128-bit padding.
func PrintWord(w io.Writer, p []byte, padded bool) {
	n := WordLen
	if padded {
		n = PaddedWordLen
	}
	if n > len(p) {
		n = len(p)
	}
	for i := n - 1; i >= 0; i-- {
		fmt.Fprintf(w, "%02x", p[i])
	}
	fmt.Fprintln(w)
}
