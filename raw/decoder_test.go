// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package raw

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/payload"
)

func TestDecodeEmptyInput(t *testing.T) {
	dec := NewDecoder(its, bytes.NewReader(nil), quiet())
	if chips := drain(t, dec); len(chips) != 0 {
		t.Fatalf("decoded chips out of an empty stream: %d", len(chips))
	}
	if stat := dec.Stat(); stat != (DecodingStat{}) {
		t.Fatalf("invalid statistics: %+v", stat)
	}
	if dec.NRUs() != 0 || dec.NLinks() != 0 {
		t.Fatalf("invalid RU/link count: %d/%d", dec.NRUs(), dec.NLinks())
	}
}

// buildPage assembles one CRU page with bare 80-bit GBT words.
func buildPage(rdh cru.RDH, words ...[]byte) []byte {
	rdh.Version = cru.RDHVersion
	rdh.HeaderSize = cru.RDHLen
	rdh.MemorySize = uint16(cru.RDHLen + len(words)*cru.WordLen)
	if rdh.OffsetToNext == 0xffff { // sentinel for "no continuation"
		rdh.OffsetToNext = 0
	} else if rdh.OffsetToNext == 0 {
		rdh.OffsetToNext = rdh.MemorySize
	}
	page := make([]byte, cru.RDHLen, int(rdh.MemorySize))
	rdh.Encode(page)
	for _, w := range words {
		page = append(page, w...)
	}
	return page
}

func gbtHeader(packetID uint16, lanes uint32) []byte {
	w := make([]byte, cru.WordLen)
	cru.EncodeDataHeader(w, packetID, lanes)
	return w
}

func gbtTrailer(stop, timeout uint32, state uint8) []byte {
	w := make([]byte, cru.WordLen)
	cru.EncodeDataTrailer(w, stop, timeout, state)
	return w
}

func gbtPayload(flag uint8, data ...byte) []byte {
	w := make([]byte, cru.WordLen)
	copy(w[:9], data)
	w[9] = flag
	return w
}

func TestDataForStoppedLane(t *testing.T) {
	// page 0 stops lanes 0b11; page 1 of the same trigger then ships
	// data for cable 0.
	rdh := cru.RDH{
		FEEID:       its.RUSW2FEEID(0, 0),
		TriggerType: cru.TriggerPhT,
		TriggerBC:   1,
	}
	cable0 := its.GBTHeaderRUType(0, 0)

	var stream []byte
	stream = append(stream, buildPage(rdh,
		gbtHeader(0, 0b11),
		gbtPayload(cable0, 0xe0, 0x00),
		gbtTrailer(0b11, 0, 0),
	)...)
	rdh.PageCnt = 1
	stream = append(stream, buildPage(rdh,
		gbtHeader(1, 0b11),
		gbtPayload(cable0, 0xe0, 0x00),
		gbtTrailer(0b11, 0, 0x1<<cru.PacketDone),
	)...)

	dec := NewDecoder(its, bytes.NewReader(stream), quiet(),
		WithPadding128(false), WithImposeMaxPage(false),
	)
	if chips := drain(t, dec); len(chips) != 0 {
		t.Fatalf("unexpected chips: %d", len(chips))
	}

	st := dec.DecodingStatSW(0)
	if st == nil {
		t.Fatalf("missing statistics for RU 0")
	}
	for _, tc := range []struct {
		kind int
		want int
	}{
		{kind: ErrDataForStoppedLane, want: 1},
		{kind: ErrNonZeroPageAfterStop, want: 1},
		{kind: ErrNoDataForActiveLane, want: 1},
		{kind: ErrUnstoppedLanes, want: 0},
		{kind: ErrMissingGBTHeader, want: 0},
		{kind: ErrMissingGBTTrailer, want: 0},
	} {
		if got := st.ErrorCounts[tc.kind]; got != tc.want {
			t.Errorf("%s: got=%d, want=%d", ErrNames[tc.kind], got, tc.want)
		}
	}
	if got, want := st.PacketStates[0x1<<cru.PacketDone], 1; got != want {
		t.Errorf("invalid packet-state histogram: got=%d, want=%d", got, want)
	}
}

func TestZeroOffsetTerminatesTrigger(t *testing.T) {
	rdh := cru.RDH{
		FEEID:        its.RUSW2FEEID(0, 0),
		TriggerType:  cru.TriggerPhT,
		OffsetToNext: 0xffff, // ask buildPage for offsetToNext = 0
	}
	stream := buildPage(rdh,
		gbtHeader(0, 0b1),
		gbtPayload(its.GBTHeaderRUType(0, 0), 0xe0, 0x00),
		gbtTrailer(0b1, 0, 0x1<<cru.PacketDone),
	)

	dec := NewDecoder(its, bytes.NewReader(stream), quiet(),
		WithPadding128(false), WithImposeMaxPage(false),
	)
	if chips := drain(t, dec); len(chips) != 0 {
		t.Fatalf("unexpected chips: %d", len(chips))
	}
	if st := dec.DecodingStatSW(0); st == nil || st.NErrors() != 0 {
		t.Fatalf("unexpected decoding errors: %+v", st)
	}
	if got, want := dec.Stat().NPagesProcessed, uint64(1); got != want {
		t.Fatalf("invalid page count: got=%d, want=%d", got, want)
	}
}

func TestCorruptRDHRecovery(t *testing.T) {
	raw := encodeStream(t,
		[][]Digit{
			{{ChipID: 0, Row: 5, Col: 9}},
			{{ChipID: 0, Row: 6, Col: 10}},
		},
		[]InteractionRecord{{Orbit: 1}, {Orbit: 2}},
		0, 0,
	)
	if len(raw) != 2*cru.MaxPageBytes {
		t.Fatalf("unexpected stream layout: %d bytes", len(raw))
	}

	// splice 8 garbage GBT words between the two pages.
	garbage := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 8*cru.PaddedWordLen/4)
	stream := make([]byte, 0, len(raw)+len(garbage))
	stream = append(stream, raw[:cru.MaxPageBytes]...)
	stream = append(stream, garbage...)
	stream = append(stream, raw[cru.MaxPageBytes:]...)

	logbuf := new(bytes.Buffer)
	dec := NewDecoder(its, bytes.NewReader(stream), WithLogger(log.New(logbuf, "", 0)))
	chips := drain(t, dec)
	if len(chips) != 2 {
		t.Fatalf("invalid number of chips: got=%d, want=2", len(chips))
	}
	if chips[0].Orbit != 1 || chips[1].Orbit != 2 {
		t.Fatalf("invalid trigger orbits: %d, %d", chips[0].Orbit, chips[1].Orbit)
	}
	if !strings.Contains(logbuf.String(), "skipping 8 GBT words") {
		t.Fatalf("missing resync report:\n%s", logbuf.String())
	}
	if st := dec.DecodingStatSW(0); st.NErrors() != 0 {
		t.Fatalf("unexpected decoding errors: %d", st.NErrors())
	}
}

func TestMissingGBTTrailer(t *testing.T) {
	raw := encodeStream(t,
		[][]Digit{
			{{ChipID: 0, Row: 5, Col: 9}},
			{{ChipID: 0, Row: 6, Col: 10}},
		},
		[]InteractionRecord{{Orbit: 1}, {Orbit: 2}},
		0, 0,
	)

	// overwrite the flag byte of the trailer of page 1 with a payload
	// cable flag.
	var rdh cru.RDH
	rdh.Decode(raw)
	trailer := int(rdh.MemorySize) - cru.PaddedWordLen
	raw[trailer+9] = its.GBTHeaderRUType(0, 1)

	dec := NewDecoder(its, bytes.NewReader(raw), quiet())
	chips := drain(t, dec)
	if len(chips) != 2 {
		t.Fatalf("invalid number of chips: got=%d, want=2", len(chips))
	}
	st := dec.DecodingStatSW(0)
	if got, want := st.ErrorCounts[ErrMissingGBTTrailer], 1; got != want {
		t.Fatalf("invalid missing-trailer count: got=%d, want=%d", got, want)
	}
	if chips[1].Orbit != 2 {
		t.Fatalf("second trigger not decoded: orbit=%d", chips[1].Orbit)
	}
}

func TestSkimRoundTrip(t *testing.T) {
	var digits []Digit
	for row := uint16(0); row < 512; row++ {
		for _, col := range []uint16{0, 100, 200, 300, 400} {
			digits = append(digits, Digit{ChipID: 0, Row: row, Col: col})
		}
	}
	triggers := [][]Digit{
		digits,
		{{ChipID: 3, Row: 1, Col: 1}, {ChipID: 12, Row: 2, Col: 2}},
	}
	irs := []InteractionRecord{{Orbit: 1}, {Orbit: 2}}
	raw := encodeStream(t, triggers, irs, 0, 1)

	skim := NewDecoder(its, bytes.NewReader(raw), quiet())
	out := payload.New(len(raw))
	for skim.SkimNextRUData(out) {
	}
	if got := out.Size(); got >= len(raw) {
		t.Fatalf("skimmed stream not smaller: got=%d, want<%d", got, len(raw))
	}

	decode := func(p []byte, opts ...Option) map[int]int {
		dec := NewDecoder(its, bytes.NewReader(p), append([]Option{quiet()}, opts...)...)
		chips := make(map[int]int)
		for _, cd := range drain(t, dec) {
			chips[int(cd.ChipID)] += len(cd.Pixels)
		}
		if st := dec.DecodingStatSW(0); st.NErrors() != 0 {
			t.Fatalf("unexpected decoding errors: %d", st.NErrors())
		}
		return chips
	}

	want := decode(raw)
	got := decode(out.Bytes(), WithPadding128(false), WithImposeMaxPage(false))
	if len(got) != len(want) {
		t.Fatalf("invalid chips: got=%v, want=%v", got, want)
	}
	for id, n := range want {
		if got[id] != n {
			t.Fatalf("chip %d: invalid pixel count: got=%d, want=%d", id, got[id], n)
		}
	}
}
