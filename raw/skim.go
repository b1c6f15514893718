// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raw

import (
	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/payload"
)

// SkimNextRUData rewrites the next multi-page RU trigger of the raw
// stream to out, replacing 128-bit-padded GBT words with bare 80-bit
// words and adjusting the stored page sizes accordingly. RDH fields
// other than memory size and offset-to-next are preserved
// byte-for-byte. It reports false when no input is left; on an
// abortive error the output is truncated to its size on entry, the
// stream cursor is moved to the next plausible RDH and the result
// reports whether one was found.
func (dec *Decoder) SkimNextRUData(out *payload.Buffer) bool {
	dec.loadInput()
	if dec.buf.IsEmpty() {
		return false
	}

	consumed, aborted := dec.skimPaddedRUData(out)
	if !aborted {
		dec.buf.Advance(consumed)
		if dec.buf.IsEmpty() {
			dec.buf.Clear()
		}
		return true
	}
	return dec.findNextRDH()
}

// skimPaddedRUData walks the pages of one RU trigger with 128-bit
// padded GBT words and fixed-size pages, writing the equivalent
// 80-bit-word pages to out. It returns the number of input bytes
// consumed and whether the walk was aborted.
func (dec *Decoder) skimPaddedRUData(out *payload.Buffer) (int, bool) {
	const (
		wsIn  = cru.PaddedWordLen
		wsOut = cru.WordLen
	)
	var (
		raw         = dec.buf.Bytes()
		pos         = 0
		sizeAtEntry = out.Size()
	)

	if len(raw) < cru.RDHLen || !cru.IsRDHHeuristic(raw) {
		dec.msg.Printf("page does not start with RDH")
		return 0, true
	}
	var rdh cru.RDH
	rdh.Decode(raw)

	ruSW := dec.mp.FEEID2RUSW(rdh.FEEID)
	if int(ruSW) >= dec.mp.NRUs() {
		return 0, true
	}
	ruDec := dec.slab.getCreate(ruSW, dec.mp)
	st := &ruDec.stat

	dec.ir = InteractionRecord{Orbit: rdh.TriggerOrbit, BC: rdh.TriggerBC}
	dec.irHB = InteractionRecord{Orbit: rdh.HeartbeatOrbit, BC: rdh.HeartbeatBC}
	dec.trigger = rdh.TriggerType

	st.NPackets++
	dec.stat.NRUsProcessed++

	for {
		dec.stat.NPagesProcessed++
		dec.stat.NBytesProcessed += uint64(rdh.MemorySize)

		pageStart := pos
		pos += int(rdh.HeaderSize)
		nWords := (int(rdh.MemorySize)-int(rdh.HeaderSize))/wsIn - 2

		if pos+wsIn > len(raw) {
			st.ErrorCounts[ErrMissingGBTHeader]++
			out.ShrinkTo(sizeAtEntry)
			return pos, true
		}
		w := raw[pos:]
		if !cru.IsDataHeader(w) {
			dec.msg.Printf("FEE#%d GBT payload header was expected, abort page skimming", rdh.FEEID)
			st.ErrorCounts[ErrMissingGBTHeader]++
			out.ShrinkTo(sizeAtEntry)
			return pos, true
		}
		if cru.PacketID(w) != rdh.PageCnt {
			st.ErrorCounts[ErrRDHvsGBTHPageCnt]++
		}
		if st.LanesActive == st.LanesStop && rdh.PageCnt != 0 {
			st.ErrorCounts[ErrNonZeroPageAfterStop]++
		}
		st.LanesActive = cru.Lanes(w)
		if rdh.PageCnt == 0 {
			st.LanesStop = 0
			st.LanesWithData = 0
		}

		out.EnsureFreeCapacity(cru.MaxPageBytes)
		rdhPos := out.Size()
		out.Add(raw[pageStart : pageStart+int(rdh.HeaderSize)])
		out.Add(w[:wsOut])
		pos += wsIn

		for iw := 0; iw < nWords; iw++ {
			if pos+wsIn > len(raw) {
				break
			}
			w = raw[pos:]
			if cru.IsDataTrailer(w) {
				nWords = iw // the word-count estimate was wrong
				break
			}
			cableSW := dec.mp.CableHW2SW(ruDec.info.Type, cru.CableID(w))
			out.Add(w[:wsOut])
			if int(cableSW) < cru.MaxCablesPerRU {
				st.LanesWithData |= 0x1 << cableSW
				if st.LanesStop&(0x1<<cableSW) != 0 {
					st.ErrorCounts[ErrDataForStoppedLane]++
				}
			}
			pos += wsIn
		}

		if pos+wsIn > len(raw) {
			st.ErrorCounts[ErrMissingGBTTrailer]++
			out.ShrinkTo(sizeAtEntry)
			return pos, true
		}
		w = raw[pos:]
		if !cru.IsDataTrailer(w) {
			dec.msg.Printf("FEE#%d GBT payload trailer was expected, abort page skimming", rdh.FEEID)
			st.ErrorCounts[ErrMissingGBTTrailer]++
			out.ShrinkTo(sizeAtEntry)
			return pos, true
		}
		st.LanesTimeOut |= cru.LanesTimeout(w)
		st.LanesStop |= cru.LanesStop(w)
		out.Add(w[:wsOut])
		pos += wsIn

		// register the real payload size in the stored page.
		newSz := uint16(int(rdh.HeaderSize) + (2+nWords)*wsOut)
		pg := out.Tail(out.Size() - rdhPos)
		cru.SetMemorySize(pg, newSz)
		cru.SetOffsetToNext(pg, newSz)

		if rdh.OffsetToNext == 0 {
			dec.closeTrigger(st, &rdh, w)
			pos = pageStart + int(rdh.MemorySize)
			break
		}
		next := pageStart + int(rdh.OffsetToNext)
		if next+cru.RDHLen > len(raw) {
			dec.closeTrigger(st, &rdh, w)
			if next > len(raw) {
				next = len(raw)
			}
			pos = next
			break
		}
		var rdhN cru.RDH
		rdhN.Decode(raw[next:])
		if !isSameRUAndTrigger(&rdh, &rdhN) {
			dec.closeTrigger(st, &rdh, w)
			pos = next
			break
		}
		if rdhN.PageCnt != rdh.PageCnt+1 {
			st.ErrorCounts[ErrPageCounterDiscontinuity]++
		}
		pos = next
		rdh = rdhN
	}

	return pos, false
}
