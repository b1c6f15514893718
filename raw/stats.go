// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raw

import (
	"fmt"
	"io"

	"github.com/go-lpc/alpide/cru"
)

// Decoding-error kinds counted per RU.
const (
	ErrPageCounterDiscontinuity = iota // RDH page counters for the same RU/trigger are not continuous
	ErrRDHvsGBTHPageCnt                // RDH and GBT header page counters are not consistent
	ErrMissingGBTHeader                // GBT payload header was expected but not found
	ErrMissingGBTTrailer               // GBT payload trailer was expected but not found
	ErrNonZeroPageAfterStop            // all lanes were stopped but the page counter is not 0
	ErrUnstoppedLanes                  // end of FEE data reached while not all lanes received stop
	ErrDataForStoppedLane              // data was received for a stopped lane
	ErrNoDataForActiveLane             // no data was seen for a lane which was not in timeout
	ErrIBChipLaneMismatch              // chip ID on module differs from the lane ID on the IB stave
	ErrCableDataHeadWrong              // cable data does not start with chip header or empty chip

	NErrorsDefined
)

// ErrNames are the human-readable descriptions of the decoding-error
// kinds, indexed like the error counters.
var ErrNames = [NErrorsDefined]string{
	"RDH page counters for the same RU/trigger are not continuous",
	"RDH and GBT header page counters are not consistent",
	"GBT payload header was expected but not found",
	"GBT payload trailer was expected but not found",
	"All lanes were stopped but the page counter is not 0",
	"End of FEE data reached while not all lanes received stop",
	"Data was received for stopped lane",
	"No data was seen for lane (which was not in timeout)",
	"ChipID (on module) was different from the lane ID on the IB stave",
	"Cable data does not start with ChipHeader or ChipEmpty",
}

// RUDecodingStat counts format violations and packet states seen while
// decoding the data of one RU.
type RUDecodingStat struct {
	LanesActive   uint32 // lanes declared by the payload header
	LanesStop     uint32 // lanes that received stop in the payload trailer
	LanesTimeOut  uint32 // lanes that received timeout
	LanesWithData uint32 // lanes with data transmitted

	NPackets     uint32
	ErrorCounts  [NErrorsDefined]int
	PacketStates [cru.MaxStateCombinations]int
}

// Clear resets the statistics.
func (st *RUDecodingStat) Clear() {
	*st = RUDecodingStat{}
}

// NErrors returns the total number of decoding errors recorded.
func (st *RUDecodingStat) NErrors() int {
	n := 0
	for _, v := range st.ErrorCounts {
		n += v
	}
	return n
}

// Print writes a human-readable dump of the statistics to w, skipping
// zero error counters when skipEmpty is true.
func (st *RUDecodingStat) Print(w io.Writer, skipEmpty bool) {
	fmt.Fprintf(w, "Decoding errors: %d\n", st.NErrors())
	for i, v := range st.ErrorCounts {
		if !skipEmpty || v != 0 {
			fmt.Fprintf(w, "%-70s: %d\n", ErrNames[i], v)
		}
	}
	fmt.Fprintf(w, "Packet states statistics (total packets: %d)\n", st.NPackets)
	for i, v := range st.PacketStates {
		if v != 0 {
			fmt.Fprintf(w, "counts for triggers B[%0*b] : %d\n", cru.NStatesDefined, i, v)
		}
	}
}

// DecodingStat holds the global decoding counters.
type DecodingStat struct {
	NPagesProcessed uint64 // total number of pages processed
	NRUsProcessed   uint64 // total number of RUs processed (1 RU may take a few pages)
	NBytesProcessed uint64 // total number of payload bytes (rdh.MemorySize) processed
	NNonEmptyChips  uint64 // number of non-empty chips found
	NHitsDecoded    uint64 // number of hits found
}

// Clear resets the statistics.
func (st *DecodingStat) Clear() {
	*st = DecodingStat{}
}

// Print writes a human-readable dump of the statistics to w.
func (st *DecodingStat) Print(w io.Writer) {
	fmt.Fprintf(w, "%d bytes for %d RUs processed in %d pages\n",
		st.NBytesProcessed, st.NRUsProcessed, st.NPagesProcessed)
	fmt.Fprintf(w, "%d hits found in %d non-empty chips\n",
		st.NHitsDecoded, st.NNonEmptyChips)
}
