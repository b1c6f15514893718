// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raw

import (
	"fmt"

	"github.com/go-lpc/alpide/chip"
	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/payload"
)

// Encoder converts per-chip digit records of single triggers into
// page-framed ALPIDE raw data, buffered per (RU, link) until flushed
// to a sink with FlushSuperPages.
type Encoder struct {
	rwConfig

	mp    mapping.Mapping
	coder chip.Coder

	slab   ruSlab
	nLinks int

	ir InteractionRecord
}

// NewEncoder returns an encoder using mp to translate between the
// software and hardware views of the cabling.
func NewEncoder(mp mapping.Mapping, opts ...Option) *Encoder {
	cfg := newRWConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Encoder{
		rwConfig: cfg,
		mp:       mp,
		slab:     newRUSlab(mp.NRUs()),
	}
}

// Mapping returns the cabling tables the encoder translates with.
func (enc *Encoder) Mapping() mapping.Mapping { return enc.mp }

// NLinks returns the number of GBT links booked so far.
func (enc *Encoder) NLinks() int { return enc.nLinks }

// DigitsToRaw converts the digits of a single trigger to raw data in
// the per-link page buffers. The digits must come in non-decreasing
// chip-ID order; digits of chips outside the inclusive [ruMin, ruMax]
// software-RU range are ignored. It returns the number of pages
// buffered on the link with the smallest amount of pages, a
// backpressure signal for the flushing cadence.
func (enc *Encoder) DigitsToRaw(digits []Digit, ir InteractionRecord, ruMin, ruMax uint8) (int, error) {
	enc.ir = ir
	if n := enc.mp.NRUs(); int(ruMax) >= n {
		ruMax = uint8(n - 1)
	}
	if ruMin > ruMax {
		return 0, fmt.Errorf("raw: invalid RU range [%d, %d]", ruMin, ruMax)
	}

	// book containers, imposing single-link readout for RUs with no
	// link assignment yet.
	for ru := int(ruMin); ru <= int(ruMax); ru++ {
		ruData := enc.slab.getCreate(uint16(ru), enc.mp)
		nLinks := 0
		for _, link := range ruData.links {
			if link != nil {
				nLinks++
			}
		}
		if nLinks == 0 {
			if enc.verbose > 0 {
				enc.msg.Printf("imposing single link readout for RU %d", ru)
			}
			ruData.links[0] = &RULink{lanes: enc.mp.CablesOnRUType(ruData.info.Type)}
			enc.nLinks++
		}
	}

	// place digits into the per-chip scratch lists.
	var (
		curChipID = -1
		curChip   *chip.Data
	)
	for _, dig := range digits {
		if dig.ChipID != curChipID {
			if dig.ChipID < curChipID {
				return 0, fmt.Errorf("raw: digits not in increasing chip-ID order (%d after %d)",
					dig.ChipID, curChipID)
			}
			if dig.ChipID >= enc.mp.NChips() {
				return 0, fmt.Errorf("raw: unknown chip ID %d", dig.ChipID)
			}
			curChipID = dig.ChipID
			curChip = nil
			chInfo := enc.mp.ChipInfoSW(dig.ChipID)
			if int(chInfo.RU) < int(ruMin) || int(chInfo.RU) > int(ruMax) {
				continue // chip outside the requested RU range
			}
			ruData := enc.slab.get(chInfo.RU)
			curChip = &ruData.chipsData[ruData.nChipsFired]
			ruData.nChipsFired++
			curChip.Clear()
			curChip.ChipID = uint16(chInfo.ChipOnRU)
		}
		if curChip != nil {
			curChip.Pixels = append(curChip.Pixels, chip.Pixel{Row: dig.Row, Col: dig.Col})
		}
	}

	// convert the chips to ALPIDE cable streams and frame them.
	minPages := -1
	for ru := int(ruMin); ru <= int(ruMax); ru++ {
		ruData := enc.slab.get(uint16(ru))
		if ruData.nChipsFired > 0 {
			next := 0
			for ich := 0; ich < ruData.nChipsFired; ich++ {
				cd := &ruData.chipsData[ich]
				enc.convertEmptyChips(ruData, next, int(cd.ChipID))
				next = int(cd.ChipID) + 1
				enc.convertChip(ruData, cd)
				cd.Clear()
			}
			enc.convertEmptyChips(ruData, next, enc.mp.NChipsOnRUType(ruData.info.Type))
		}
		np := enc.fillRULinks(ruData)
		if minPages < 0 || np < minPages {
			minPages = np
		}
	}
	if minPages < 0 {
		minPages = 0
	}
	return minPages, nil
}

// convertChip appends the ALPIDE frame of a single chip to its cable
// buffer.
func (enc *Encoder) convertChip(ru *ruDecodeData, cd *chip.Data) {
	ch := enc.mp.ChipOnRUInfo(ru.info.Type, int(cd.ChipID))
	ru.cableHWID[ch.CableSW] = ch.CableHW
	cab := &ru.cableData[ch.CableSW]
	cab.EnsureFreeCapacity(40 * (2 + len(cd.Pixels)))
	enc.coder.EncodeChip(cab, cd, ch.ChipOnModuleHW, enc.ir.BC)
}

// convertEmptyChips appends chip-empty frames for the [from, upto)
// chips of the RU, so that the cable streams stay dense in chip IDs.
func (enc *Encoder) convertEmptyChips(ru *ruDecodeData, from, upto int) {
	for id := from; id < upto; id++ {
		ch := enc.mp.ChipOnRUInfo(ru.info.Type, id)
		ru.cableHWID[ch.CableSW] = ch.CableHW
		cab := &ru.cableData[ch.CableSW]
		cab.EnsureFreeCapacity(100)
		enc.coder.AddEmptyChip(cab, ch.ChipOnModuleHW, enc.ir.BC)
	}
}

// fillRULinks frames the cable streams of one RU into CRU pages on its
// link buffers, returning the number of pages buffered on the link
// with the smallest amount of pages.
func (enc *Encoder) fillRULinks(ru *ruDecodeData) int {
	var (
		minPages = -1
		ws       = enc.gbtWordSize()
		maxWords = (cru.MaxPageBytes-cru.RDHLen)/ws - 2

		hdr  [cru.RDHLen]byte
		word [cru.PaddedWordLen]byte

		rdh = cru.RDH{
			Version:        cru.RDHVersion,
			HeaderSize:     cru.RDHLen,
			BlockLength:    0xffff, // kept as a dummy by the detector
			TriggerOrbit:   enc.ir.Orbit,
			HeartbeatOrbit: enc.ir.Orbit,
			TriggerBC:      enc.ir.BC,
			HeartbeatBC:    enc.ir.BC,
			TriggerType:    cru.TriggerPhT,
			DetectorField:  enc.mp.RUDetectorField(),
		}
	)
	ru.nCables = ru.info.NCables

	for il := 0; il < cru.MaxLinksPerRU; il++ {
		link := ru.links[il]
		if link == nil {
			continue
		}
		remaining := 0
		for icab := ru.nCables - 1; icab >= 0; icab-- {
			if link.lanes&(0x1<<icab) != 0 {
				if nb := ru.cableData[icab].Len(); nb != 0 {
					remaining += 1 + (nb-1)/9
				}
			}
		}

		rdh.FEEID = enc.mp.RUSW2FEEID(ru.info.IDSW, uint8(il))
		rdh.LinkID = uint8(il)
		rdh.PageCnt = 0

		var lanesUsed uint32
		for {
			inPage := remaining
			if inPage > maxWords {
				inPage = maxWords
			}
			rdh.Stop = 0
			if remaining <= maxWords {
				rdh.Stop = 1
			}
			memSz := cru.RDHLen + (inPage+2)*ws
			if memSz > cru.MaxPageBytes {
				memSz = cru.MaxPageBytes
			}
			rdh.MemorySize = uint16(memSz)
			rdh.OffsetToNext = uint16(memSz)
			if enc.imposeMaxPage {
				rdh.OffsetToNext = cru.MaxPageBytes
			}

			link.data.EnsureFreeCapacity(cru.MaxPageBytes)
			rdh.Encode(hdr[:])
			link.data.Add(hdr[:])
			link.nTriggers++ // pages are counted here, not triggers

			cru.EncodeDataHeader(word[:ws], rdh.PageCnt, link.lanes)
			link.data.Add(word[:ws])
			if enc.verbose > 1 {
				cru.PrintRDH(enc.msg.Writer(), &rdh)
			}

			// round-robin over the lanes served by this link, writing
			// at most 9 bytes of one cable per word.
			n := 0
			for n < inPage {
				wrote := false
				for icab := 0; icab < ru.nCables && n < inPage; icab++ {
					if link.lanes&(0x1<<icab) == 0 {
						continue
					}
					cab := &ru.cableData[icab]
					nb := cab.Len()
					if nb == 0 {
						continue
					}
					if nb > 9 {
						nb = 9
					}
					for i := range word {
						word[i] = 0
					}
					copy(word[:9], cab.Bytes()[:nb])
					word[9] = enc.mp.GBTHeaderRUType(ru.info.Type, ru.cableHWID[icab])
					link.data.Add(word[:ws])
					cab.Advance(nb)
					lanesUsed |= 0x1 << icab
					n++
					wrote = true
				}
				if !wrote {
					break
				}
			}
			remaining -= n

			var (
				lanesStop    uint32
				lanesTimeout uint32
				state        uint8
			)
			if remaining == 0 { // last page of the trigger
				lanesStop = link.lanes
				lanesTimeout = link.lanes &^ lanesUsed
				state = 0x1 << cru.PacketDone
			}
			cru.EncodeDataTrailer(word[:ws], lanesStop, lanesTimeout, state)
			link.data.Add(word[:ws])

			if remaining == 0 {
				break
			}
			rdh.PageCnt++
		}

		if minPages < 0 || link.nTriggers < minPages {
			minPages = link.nTriggers
		}
	}
	ru.clearTrigger()
	ru.nChipsFired = 0
	if minPages < 0 {
		return 0
	}
	return minPages
}

// FlushSuperPages drains at most maxPages pages of each link to the
// sink, zero-filling each page to the maximal CRU page size when the
// encoder imposes it, and returns the total number of pages flushed.
func (enc *Encoder) FlushSuperPages(maxPages int, sink *payload.Buffer) int {
	tot := 0
	for ru := 0; ru < enc.mp.NRUs(); ru++ {
		ruData := enc.slab.get(uint16(ru))
		if ruData == nil {
			continue
		}
		for _, link := range ruData.links {
			if link == nil || link.data.IsEmpty() {
				continue
			}
			sink.EnsureFreeCapacity(maxPages * cru.MaxPageBytes)
			n := 0
			for n < maxPages && !link.data.IsEmpty() {
				p := link.data.Bytes()
				memSz := int(cru.MemorySize(p))
				sink.Add(p[:memSz])
				if enc.imposeMaxPage {
					sink.FillZero(cru.MaxPageBytes - memSz)
				}
				link.data.Advance(memSz)
				link.nTriggers-- // pages, not triggers
				n++
			}
			tot += n
			link.data.CompactConsumed()
		}
	}
	return tot
}
