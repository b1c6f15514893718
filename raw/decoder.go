// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raw

import (
	"errors"
	"io"

	"github.com/go-lpc/alpide/chip"
	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/payload"
)

// Decoder reads CRU pages from an underlying byte source and hands out
// per-chip pixel records, one trigger at a time.
//
// The decoder alternates two phases: a cache phase distributing pages
// from the raw stream among per-(RU,link) buffers until every active
// link holds at least the configured number of triggers, and a decode
// phase draining one trigger from every RU. Protocol violations are
// counted in the per-RU statistics and never abort the stream: at
// worst the current page is dropped and the stream cursor is moved to
// the next plausible RDH.
type Decoder struct {
	rwConfig

	mp    mapping.Mapping
	src   io.Reader
	coder chip.Coder

	buf  payload.Buffer // raw stream in flight
	eof  bool
	slab ruSlab

	nLinks int
	curRU  int // slot of the RU being drained, -1 when none

	minTriggersCached int

	ir      InteractionRecord // trigger identity of the frame being decoded
	irHB    InteractionRecord
	trigger uint32

	stat DecodingStat
}

// NewDecoder returns a decoder pulling bytes from src, using mp to
// translate between the hardware and software views of the cabling.
func NewDecoder(mp mapping.Mapping, src io.Reader, opts ...Option) *Decoder {
	cfg := newRWConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	dec := &Decoder{
		rwConfig: cfg,
		mp:       mp,
		src:      src,
		slab:     newRUSlab(mp.NRUs()),
		curRU:    -1,
	}
	dec.buf.Reserve(RawBufferSize)
	return dec
}

// Stat returns the global decoding statistics.
func (dec *Decoder) Stat() DecodingStat { return dec.stat }

// DecodingStatSW returns the statistics of the RU with the given
// software ID, or nil if that RU was never seen.
func (dec *Decoder) DecodingStatSW(ruSW uint16) *RUDecodingStat {
	ru := dec.slab.get(ruSW)
	if ru == nil {
		return nil
	}
	return &ru.stat
}

// DecodingStatHW returns the statistics of the RU behind the given
// FEE ID, or nil if that RU was never seen.
func (dec *Decoder) DecodingStatHW(feeID uint16) *RUDecodingStat {
	return dec.DecodingStatSW(dec.mp.FEEID2RUSW(feeID))
}

// NRUs returns the number of RUs seen in the data.
func (dec *Decoder) NRUs() int { return dec.slab.nRUs }

// NLinks returns the number of GBT links seen in the data.
func (dec *Decoder) NLinks() int { return dec.nLinks }

// Mapping returns the cabling tables the decoder translates with.
func (dec *Decoder) Mapping() mapping.Mapping { return dec.mp }

// Clear resets the decoder state and statistics, dropping any data in
// flight.
func (dec *Decoder) Clear() {
	dec.stat.Clear()
	for i := 0; i < dec.slab.nRUs; i++ {
		ru := &dec.slab.rus[i]
		ru.clear()
		for il, link := range ru.links {
			if link != nil {
				link.data.Clear()
				ru.links[il] = nil
			}
		}
	}
	for i := range dec.slab.entry {
		dec.slab.entry[i] = -1
	}
	dec.slab.nRUs = 0
	dec.nLinks = 0
	dec.curRU = -1
	dec.minTriggersCached = 0
	dec.buf.Clear()
	dec.eof = false
}

// NextChipData hands out the next decoded chip, transferring its pixel
// storage into dst. It reports false once the stream is exhausted.
//
// Chips come out in stream-trigger order and, within a trigger, in the
// RU's cable-then-chip order.
func (dec *Decoder) NextChipData(dst *chip.Data) bool {
	for {
		if dec.curRU >= 0 { // serve chips already decoded
			for ; dec.curRU < dec.slab.nRUs; dec.curRU++ {
				ru := &dec.slab.rus[dec.curRU]
				if ru.lastChipChecked < ru.nChipsFired {
					dst.Swap(&ru.chipsData[ru.lastChipChecked])
					ru.lastChipChecked++
					return true
				}
			}
			dec.curRU = 0 // no more decoded data
		}
		// the last cached trigger might be incomplete: top up first.
		if dec.minTriggersCached < 2 {
			dec.cacheLinksData()
		}
		if dec.minTriggersCached < 1 || dec.decodeNextTrigger() == 0 {
			dec.curRU = -1
			return false
		}
	}
}

// loadInput tops up the raw buffer from the source when the amount of
// not-yet-consumed bytes falls below the margin.
func (dec *Decoder) loadInput() int {
	if dec.src == nil || dec.eof {
		return 0
	}
	if dec.buf.Len() > RawBufferMargin {
		return 0
	}
	dec.buf.CompactConsumed()
	n := dec.buf.Append(func(p []byte) int {
		m, err := dec.src.Read(p)
		if m == 0 && err != nil {
			dec.eof = true
		}
		return m
	})
	return n
}

// cacheLinksData distributes pages from the raw stream among the
// per-link buffers until every known link holds at least
// minTriggersToCache triggers or the source runs dry.
func (dec *Decoder) cacheLinksData() int {
	nRead := dec.loadInput()
	if dec.buf.IsEmpty() {
		dec.minTriggersCached = dec.minCachedOverLinks()
		return nRead
	}

	enough := make([][cru.MaxLinksPerRU]bool, dec.mp.NRUs())
	nLEnough := 0

	var rdh cru.RDH
	for !dec.buf.IsEmpty() {
		w := dec.buf.Bytes()
		if len(w) < cru.RDHLen || !cru.IsRDHHeuristic(w) {
			if !dec.findNextRDH() {
				break
			}
			continue
		}
		rdh.Decode(w)

		memSz := int(rdh.MemorySize)
		if memSz < cru.RDHLen {
			// insane page size: scan for the next RDH.
			if !dec.findNextRDH() {
				break
			}
			continue
		}
		if memSz > dec.buf.Len() {
			if dec.loadInput() == 0 {
				break // truncated page at end of stream
			}
			continue
		}
		w = dec.buf.Bytes()

		ruSW := dec.mp.FEEID2RUSW(rdh.FEEID)
		if int(ruSW) >= dec.mp.NRUs() || int(rdh.LinkID) >= cru.MaxLinksPerRU {
			if !dec.findNextRDH() {
				break
			}
			continue
		}
		ruDec := dec.slab.getCreate(ruSW, dec.mp)

		newTrigger := true
		link := ruDec.links[rdh.LinkID]
		switch {
		case link != nil: // was there any data seen on this link before?
			var prev cru.RDH
			prev.Decode(link.data.Tail(link.lastPageSize))
			if isSameRUAndTrigger(&prev, &rdh) {
				newTrigger = false
			}
		default:
			link = &RULink{}
			ruDec.links[rdh.LinkID] = link
			dec.nLinks++
		}

		// copy the page to the link buffer; pages are stored densely,
		// so the cached copy advertises its own size as the offset to
		// the next page.
		link.data.Add(w[:memSz])
		link.lastPageSize = memSz
		cru.SetOffsetToNext(link.data.Tail(memSz), rdh.MemorySize)

		if newTrigger {
			link.nTriggers++
			if link.nTriggers >= dec.minTriggersToCache && !enough[ruSW][rdh.LinkID] {
				enough[ruSW][rdh.LinkID] = true
				nLEnough++
			}
		}

		dec.stat.NBytesProcessed += uint64(memSz)
		dec.stat.NPagesProcessed++

		adv := int(rdh.OffsetToNext)
		if adv == 0 {
			adv = memSz // zero offset: step over the page itself to keep the stream moving
		}
		if adv > dec.buf.Len() {
			adv = dec.buf.Len()
		}
		dec.buf.Advance(adv)

		if dec.buf.Len() < cru.MaxPageBytes {
			nRead += dec.loadInput()
		}
		if dec.nLinks > 0 && dec.nLinks == nLEnough {
			break
		}
	}

	if dec.nLinks > 0 && dec.nLinks == nLEnough {
		dec.minTriggersCached = dec.minTriggersToCache
	} else {
		dec.minTriggersCached = dec.minCachedOverLinks()
	}
	if dec.verbose > 0 {
		dec.msg.Printf("cached at least %d triggers on %d links of %d RUs",
			dec.minTriggersCached, dec.nLinks, dec.slab.nRUs)
	}
	return nRead
}

func (dec *Decoder) minCachedOverLinks() int {
	min := -1
	for i := 0; i < dec.slab.nRUs; i++ {
		for _, link := range dec.slab.rus[i].links {
			if link != nil && (min < 0 || link.nTriggers < min) {
				min = link.nTriggers
			}
		}
	}
	if min < 0 {
		min = 0
	}
	return min
}

// findNextRDH advances the stream cursor one GBT word at a time until
// a plausible RDH appears, reporting the size of the skipped region.
func (dec *Decoder) findNextRDH() bool {
	var (
		scan = 0
		good = false
	)
	for {
		if dec.buf.IsEmpty() && dec.loadInput() == 0 {
			break
		}
		step := dec.gbtWordSize()
		if step > dec.buf.Len() {
			step = dec.buf.Len()
		}
		dec.buf.Advance(step)
		scan++
		if dec.buf.Len() < cru.RDHLen {
			if dec.loadInput() == 0 && dec.buf.Len() < cru.RDHLen {
				break
			}
		}
		if cru.IsRDHHeuristic(dec.buf.Bytes()) {
			good = true
			break
		}
	}
	not := " not"
	if good {
		not = ""
	}
	dec.msg.Printf("end of pointer recovery after skipping %d GBT words, RDH is%s found", scan, not)
	return good
}

// decodeNextTrigger drains one trigger from every RU with buffered
// data and returns the number of links decoded.
func (dec *Decoder) decodeNextTrigger() int {
	if dec.minTriggersCached < 1 {
		return 0
	}
	nlinks := 0
	for i := dec.slab.nRUs - 1; i >= 0; i-- {
		ru := &dec.slab.rus[i]
		if nlinks == 0 { // first RU with data fixes the trigger identity
			for _, link := range ru.links {
				if link != nil && !link.data.IsEmpty() {
					var rdh cru.RDH
					rdh.Decode(link.data.Bytes())
					dec.ir = InteractionRecord{Orbit: rdh.TriggerOrbit, BC: rdh.TriggerBC}
					dec.irHB = InteractionRecord{Orbit: rdh.HeartbeatOrbit, BC: rdh.HeartbeatBC}
					dec.trigger = rdh.TriggerType
					break
				}
			}
		}
		nlinks += dec.decodeNextRUData(ru)
		dec.stat.NRUsProcessed++
	}
	dec.curRU = 0
	dec.minTriggersCached--
	return nlinks
}

// decodeNextRUData re-assembles the per-cable streams of one trigger
// of one RU from its link buffers and decodes the ALPIDE payload.
func (dec *Decoder) decodeNextRUData(ru *ruDecodeData) int {
	res := 0
	ru.clearTrigger()
	for _, link := range ru.links {
		if link == nil || link.data.IsEmpty() {
			continue
		}
		dec.decodeRUData(link, ru)
		link.nTriggers--
		res++
		if link.data.IsEmpty() {
			link.data.Clear()
		}
	}
	if ru.nCables != 0 {
		dec.decodeAlpideData(ru)
	}
	return res
}

// decodeRUData walks the pages of the current trigger of one link,
// distributing GBT payload words among the cable buffers of ru. It
// reports whether the page walk was aborted.
func (dec *Decoder) decodeRUData(link *RULink, ru *ruDecodeData) bool {
	var (
		raw = link.data.Bytes()
		pos = 0
		ws  = dec.gbtWordSize()
		st  = &ru.stat
	)

	if len(raw) < cru.RDHLen || !cru.IsRDHHeuristic(raw) {
		dec.msg.Printf("page does not start with RDH")
		adv := ws
		if adv > len(raw) {
			adv = len(raw)
		}
		link.data.Advance(adv)
		dec.resyncLink(link)
		return true
	}
	var rdh cru.RDH
	rdh.Decode(raw)

	if ruSW := dec.mp.FEEID2RUSW(rdh.FEEID); ruSW != ru.info.IDSW {
		dec.msg.Printf("RDH RU IDSW %d differs from expected %d", ruSW, ru.info.IDSW)
	}

	st.NPackets++
	ru.nCables = ru.info.NCables
	for {
		pageStart := pos
		pos += int(rdh.HeaderSize)

		// number of GBT words excluding header/trailer; the estimate
		// from memorySize is advisory, the trailer is authoritative.
		nWords := (int(rdh.MemorySize)-int(rdh.HeaderSize))/ws - 2

		if pos+ws > len(raw) {
			st.ErrorCounts[ErrMissingGBTHeader]++
			link.data.Advance(len(raw))
			return true
		}
		w := raw[pos:]
		if !cru.IsDataHeader(w) {
			dec.msg.Printf("FEE#%d GBT payload header was expected, abort page decoding", rdh.FEEID)
			st.ErrorCounts[ErrMissingGBTHeader]++
			link.data.Advance(pos)
			dec.resyncLink(link)
			return true
		}
		if cru.PacketID(w) != rdh.PageCnt {
			st.ErrorCounts[ErrRDHvsGBTHPageCnt]++
		}
		if st.LanesActive == st.LanesStop && rdh.PageCnt != 0 {
			st.ErrorCounts[ErrNonZeroPageAfterStop]++
		}
		st.LanesActive = cru.Lanes(w)
		link.lanes = st.LanesActive
		if rdh.PageCnt == 0 {
			st.LanesStop = 0
			st.LanesWithData = 0
		}
		pos += ws

		for iw := 0; iw < nWords; iw++ {
			if pos+ws > len(raw) {
				break
			}
			w = raw[pos:]
			if cru.IsDataTrailer(w) {
				break // the word-count estimate was wrong
			}
			cableHW := cru.CableID(w)
			cableSW := dec.mp.CableHW2SW(ru.info.Type, cableHW)
			if int(cableSW) < cru.MaxCablesPerRU {
				ru.cableData[cableSW].Add(w[:9])
				ru.cableHWID[cableSW] = cableHW
				st.LanesWithData |= 0x1 << cableSW
				if st.LanesStop&(0x1<<cableSW) != 0 {
					st.ErrorCounts[ErrDataForStoppedLane]++
				}
			}
			pos += ws
		}

		if pos+ws > len(raw) {
			st.ErrorCounts[ErrMissingGBTTrailer]++
			link.data.Advance(len(raw))
			return true
		}
		w = raw[pos:]
		if !cru.IsDataTrailer(w) {
			dec.msg.Printf("FEE#%d GBT payload trailer was expected, abort page decoding", rdh.FEEID)
			st.ErrorCounts[ErrMissingGBTTrailer]++
			link.data.Advance(pos)
			dec.resyncLink(link)
			return true
		}
		st.LanesTimeOut |= cru.LanesTimeout(w)
		st.LanesStop |= cru.LanesStop(w)
		pos += ws

		// jump to the page boundary; the cached copy stores its size
		// as offset-to-next.
		next := pageStart + int(rdh.MemorySize)
		if next > len(raw) {
			next = len(raw)
		}
		pos = next

		if rdh.OffsetToNext == 0 || pos+cru.RDHLen > len(raw) {
			dec.closeTrigger(st, &rdh, w)
			break
		}
		var rdhN cru.RDH
		rdhN.Decode(raw[pos:])
		if !isSameRUAndTrigger(&rdh, &rdhN) {
			dec.closeTrigger(st, &rdh, w)
			break
		}
		if rdhN.PageCnt != rdh.PageCnt+1 {
			st.ErrorCounts[ErrPageCounterDiscontinuity]++
		}
		rdh = rdhN
	}

	link.data.Advance(pos)
	return false
}

// resyncLink moves the cursor of an aborted link buffer forward, one
// GBT word at a time, to the next plausible RDH so that the following
// triggers of the link remain decodable.
func (dec *Decoder) resyncLink(link *RULink) {
	ws := dec.gbtWordSize()
	for !link.data.IsEmpty() {
		w := link.data.Bytes()
		if len(w) >= cru.RDHLen && cru.IsRDHHeuristic(w) {
			return
		}
		adv := ws
		if adv > len(w) {
			adv = len(w)
		}
		link.data.Advance(adv)
	}
}

// closeTrigger runs the end-of-trigger lane checks and accumulates the
// packet state of the closing trailer.
func (dec *Decoder) closeTrigger(st *RUDecodingStat, rdh *cru.RDH, trailer []byte) {
	if st.LanesActive != st.LanesStop && rdh.TriggerType&cru.TriggerSOT == 0 {
		st.ErrorCounts[ErrUnstoppedLanes]++
	}
	if (^st.LanesWithData)&st.LanesActive != st.LanesTimeOut {
		st.ErrorCounts[ErrNoDataForActiveLane]++
	}
	st.PacketStates[cru.PacketState(trailer)]++
}

// decodeAlpideData runs the ALPIDE decoder over the re-assembled cable
// streams of one trigger, registering every chip with pixels or with
// error flags (and, optionally, the empty ones).
func (dec *Decoder) decodeAlpideData(ru *ruDecodeData) int {
	ru.nChipsFired = 0
	ru.lastChipChecked = 0
	ntot := 0
	for icab := 0; icab < ru.nCables; icab++ {
		cab := &ru.cableData[icab]
		if h, ok := cab.Current(); ok && !chip.IsChipHeaderOrEmpty(h) {
			dec.msg.Printf("FEE#%d cable %d data does not start with ChipHeader or ChipEmpty",
				dec.mp.RUSW2FEEID(ru.info.IDSW, 0), icab)
			ru.stat.ErrorCounts[ErrCableDataHeadWrong]++
		}
		for ru.nChipsFired < cru.MaxChipsPerRU {
			cd := &ru.chipsData[ru.nChipsFired]
			cd.Clear()
			n, err := dec.coder.DecodeChip(cd, cab)
			if errors.Is(err, io.EOF) {
				break
			}
			if n == 0 && err == nil && cd.Errors == 0 && !dec.keepEmptyChips {
				continue // chip-empty frame
			}
			if n > 0 && ru.info.Type == mapping.IB && int(cd.ChipID) != icab {
				ru.stat.ErrorCounts[ErrIBChipLaneMismatch]++
			}
			cd.ChipID = uint16(dec.mp.GlobalChipID(int(cd.ChipID), ru.cableHWID[icab], ru.info))
			cd.Orbit = dec.ir.Orbit
			cd.BC = dec.ir.BC
			cd.Trigger = dec.trigger
			if n > 0 {
				dec.stat.NNonEmptyChips++
				dec.stat.NHitsDecoded += uint64(n)
			}
			ntot += n
			ru.nChipsFired++
		}
	}
	return ntot
}
