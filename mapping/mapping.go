// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mapping translates between software chip IDs, readout-unit
// (RU) IDs and cable hardware/software IDs.
package mapping // import "github.com/go-lpc/alpide/mapping"

// RUType tags the readout-unit flavour, which fixes its cabling.
type RUType int

const (
	IB RUType = iota // inner-barrel RU: one chip per cable
	ML               // middle-layer RU: 7-chip modules
	OL               // outer-layer RU: 7-chip modules

	nRUTypes
)

// RUInfo describes one readout unit.
type RUInfo struct {
	IDSW        uint16 // software RU ID
	Type        RUType
	NCables     int
	NChips      int
	FirstChipSW int // global ID of the first chip read out by this RU
}

// ChipInfo locates a chip (by global software ID) on its RU.
type ChipInfo struct {
	RU       uint16
	ChipOnRU int
}

// ChipOnRUInfo describes the cabling of one chip within an RU.
type ChipOnRUInfo struct {
	ID             int   // chip ID within the RU
	CableSW        uint8 // software cable ID
	CableHW        uint8 // hardware cable ID
	ChipOnModuleHW uint8 // chip ID within its module, as shipped on the wire
}

// Mapping translates between the software and hardware views of the
// detector cabling. Implementations must be safe for concurrent
// read-only use.
type Mapping interface {
	// FEEID2RUSW returns the software RU ID encoded in an RDH FEE ID.
	FEEID2RUSW(feeID uint16) uint16
	// RUSW2FEEID returns the FEE ID of the given link of an RU.
	RUSW2FEEID(ruSW uint16, link uint8) uint16

	// ChipInfoSW locates a chip by its global software ID.
	ChipInfoSW(chipSW int) ChipInfo
	// ChipOnRUInfo returns the cabling of the chipOnRU-th chip of an
	// RU of the given type.
	ChipOnRUInfo(t RUType, chipOnRU int) *ChipOnRUInfo
	// CableHW2SW maps a hardware cable ID to the software one.
	CableHW2SW(t RUType, hw uint8) uint8
	// GlobalChipID maps a chip ID shipped on the wire (within its
	// module) back to the global software chip ID.
	GlobalChipID(chipOnModule int, cableHW uint8, ru *RUInfo) int

	// NRUs returns the number of readout units.
	NRUs() int
	// NChips returns the total number of chips.
	NChips() int
	// NChipsOnRUType returns the number of chips served by an RU of
	// the given type.
	NChipsOnRUType(t RUType) int
	// CablesOnRUType returns the lane mask of the cables of an RU of
	// the given type.
	CablesOnRUType(t RUType) uint32
	// RUInfoSW returns the description of the RU with the given
	// software ID.
	RUInfoSW(ruSW uint16) *RUInfo
	// RUDetectorField returns the detector-field word written in the
	// RDHs of this detector.
	RUDetectorField() uint32
	// GBTHeaderRUType returns the cable flag byte written in GBT
	// payload words: the RU-type marker with the cable HW ID.
	GBTHeaderRUType(t RUType, cableHW uint8) uint8
}
