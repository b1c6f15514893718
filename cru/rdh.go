// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cru

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RDHLen is the on-disk size of the Raw Data Header.
const RDHLen = 64

// RDHVersion is the RDH format version written on encode.
const RDHVersion = 4

// RDH is the Raw Data Header prefixing every CRU page.
//
// On-disk layout (little-endian, 64 bytes): the named fields below at
// the offsets given in their comments, interleaved with six reserved words
// that must read back as zero. The reserved words drive the heuristic
// used to resynchronise on a corrupted stream.
type RDH struct {
	Version        uint8  // @0
	HeaderSize     uint8  // @1
	BlockLength    uint16 // @2
	FEEID          uint16 // @4
	Priority       uint8  // @6
	OffsetToNext   uint16 // @8
	MemorySize     uint16 // @10
	LinkID         uint8  // @12
	PacketCounter  uint8  // @13
	CRUID          uint16 // @14
	TriggerOrbit   uint32 // @16
	HeartbeatOrbit uint32 // @20
	TriggerBC      uint16 // @32
	HeartbeatBC    uint16 // @36
	TriggerType    uint32 // @40
	DetectorField  uint32 // @48
	Par            uint16 // @52
	Stop           uint16 // @56
	PageCnt        uint16 // @58
}

// Decode fills rdh from the RDHLen first bytes of p.
func (rdh *RDH) Decode(p []byte) {
	_ = p[RDHLen-1]
	rdh.Version = p[0]
	rdh.HeaderSize = p[1]
	rdh.BlockLength = binary.LittleEndian.Uint16(p[2:4])
	rdh.FEEID = binary.LittleEndian.Uint16(p[4:6])
	rdh.Priority = p[6]
	rdh.OffsetToNext = binary.LittleEndian.Uint16(p[8:10])
	rdh.MemorySize = binary.LittleEndian.Uint16(p[10:12])
	rdh.LinkID = p[12]
	rdh.PacketCounter = p[13]
	rdh.CRUID = binary.LittleEndian.Uint16(p[14:16])
	rdh.TriggerOrbit = binary.LittleEndian.Uint32(p[16:20])
	rdh.HeartbeatOrbit = binary.LittleEndian.Uint32(p[20:24])
	rdh.TriggerBC = binary.LittleEndian.Uint16(p[32:34])
	rdh.HeartbeatBC = binary.LittleEndian.Uint16(p[36:38])
	rdh.TriggerType = binary.LittleEndian.Uint32(p[40:44])
	rdh.DetectorField = binary.LittleEndian.Uint32(p[48:52])
	rdh.Par = binary.LittleEndian.Uint16(p[52:54])
	rdh.Stop = binary.LittleEndian.Uint16(p[56:58])
	rdh.PageCnt = binary.LittleEndian.Uint16(p[58:60])
}

// Encode writes rdh to the RDHLen first bytes of p, zeroing the
// reserved words.
func (rdh *RDH) Encode(p []byte) {
	_ = p[RDHLen-1]
	for i := 0; i < RDHLen; i++ {
		p[i] = 0
	}
	p[0] = rdh.Version
	p[1] = rdh.HeaderSize
	binary.LittleEndian.PutUint16(p[2:4], rdh.BlockLength)
	binary.LittleEndian.PutUint16(p[4:6], rdh.FEEID)
	p[6] = rdh.Priority
	binary.LittleEndian.PutUint16(p[8:10], rdh.OffsetToNext)
	binary.LittleEndian.PutUint16(p[10:12], rdh.MemorySize)
	p[12] = rdh.LinkID
	p[13] = rdh.PacketCounter
	binary.LittleEndian.PutUint16(p[14:16], rdh.CRUID)
	binary.LittleEndian.PutUint32(p[16:20], rdh.TriggerOrbit)
	binary.LittleEndian.PutUint32(p[20:24], rdh.HeartbeatOrbit)
	binary.LittleEndian.PutUint16(p[32:34], rdh.TriggerBC)
	binary.LittleEndian.PutUint16(p[36:38], rdh.HeartbeatBC)
	binary.LittleEndian.PutUint32(p[40:44], rdh.TriggerType)
	binary.LittleEndian.PutUint32(p[48:52], rdh.DetectorField)
	binary.LittleEndian.PutUint16(p[52:54], rdh.Par)
	binary.LittleEndian.PutUint16(p[56:58], rdh.Stop)
	binary.LittleEndian.PutUint16(p[58:60], rdh.PageCnt)
}

// MemorySize returns the memory-size field of the RDH stored at the
// head of p.
func MemorySize(p []byte) uint16 {
	return binary.LittleEndian.Uint16(p[10:12])
}

// OffsetToNext returns the offset-to-next field of the RDH stored at
// the head of p.
func OffsetToNext(p []byte) uint16 {
	return binary.LittleEndian.Uint16(p[8:10])
}

// SetOffsetToNext rewrites the offset-to-next field of the RDH stored
// at the head of p.
func SetOffsetToNext(p []byte, v uint16) {
	binary.LittleEndian.PutUint16(p[8:10], v)
}

// SetMemorySize rewrites the memory-size field of the RDH stored at
// the head of p.
func SetMemorySize(p []byte, v uint16) {
	binary.LittleEndian.PutUint16(p[10:12], v)
}

// IsRDHHeuristic reports whether the RDHLen first bytes of p plausibly
// hold an RDH: the advertised header size matches RDHLen and the six
// reserved words are zero. The check is advisory: it is used to abort
// obviously corrupt pages and to drive the resynchronisation scan.
func IsRDHHeuristic(p []byte) bool {
	if len(p) < RDHLen {
		return false
	}
	if p[1] != RDHLen {
		return false
	}
	if p[7] != 0 {
		return false
	}
	if binary.LittleEndian.Uint64(p[24:32]) != 0 {
		return false
	}
	if binary.LittleEndian.Uint16(p[34:36]) != 0 ||
		binary.LittleEndian.Uint16(p[38:40]) != 0 {
		return false
	}
	if binary.LittleEndian.Uint32(p[44:48]) != 0 {
		return false
	}
	if binary.LittleEndian.Uint32(p[60:64]) != 0 {
		return false
	}
	return true
}

// PrintRDH writes a human-readable dump of rdh to w.
func PrintRDH(w io.Writer, rdh *RDH) {
	fmt.Fprintf(w, "RDH| Ver:%2d Hsz:%2d Blgt:%4d FEEId:0x%04x PBit:%d\n",
		rdh.Version, rdh.HeaderSize, rdh.BlockLength, rdh.FEEID, rdh.Priority)
	fmt.Fprintf(w, "RDH|[CRU: Offs:%5d Msz:%4d LnkId:0x%02x Packet:%3d CRUId:0x%04x]\n",
		rdh.OffsetToNext, rdh.MemorySize, rdh.LinkID, rdh.PacketCounter, rdh.CRUID)
	fmt.Fprintf(w, "RDH| TrgOrb:%9d HBOrb:%9d TrgBC:%4d HBBC:%4d TrgType:%d\n",
		rdh.TriggerOrbit, rdh.HeartbeatOrbit, rdh.TriggerBC, rdh.HeartbeatBC, rdh.TriggerType)
	fmt.Fprintf(w, "RDH| DetField:0x%05x Par:0x%04x Stop:0x%04x PageCnt:%5d\n",
		rdh.DetectorField, rdh.Par, rdh.Stop, rdh.PageCnt)
}
