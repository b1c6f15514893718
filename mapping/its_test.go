// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mapping

import "testing"

func TestITSGeometry(t *testing.T) {
	m := NewITS()

	if got, want := m.NRUs(), 192; got != want {
		t.Fatalf("invalid number of RUs: got=%d, want=%d", got, want)
	}
	if got, want := m.NChips(), 24120; got != want {
		t.Fatalf("invalid number of chips: got=%d, want=%d", got, want)
	}

	for _, tc := range []struct {
		ruSW    uint16
		typ     RUType
		nCables int
		nChips  int
	}{
		{ruSW: 0, typ: IB, nCables: 9, nChips: 9},
		{ruSW: 47, typ: IB, nCables: 9, nChips: 9},
		{ruSW: 48, typ: ML, nCables: 16, nChips: 112},
		{ruSW: 101, typ: ML, nCables: 16, nChips: 112},
		{ruSW: 102, typ: OL, nCables: 28, nChips: 196},
		{ruSW: 191, typ: OL, nCables: 28, nChips: 196},
	} {
		ru := m.RUInfoSW(tc.ruSW)
		if ru.Type != tc.typ || ru.NCables != tc.nCables || ru.NChips != tc.nChips {
			t.Fatalf("invalid RU %d: got=(%v,%d,%d), want=(%v,%d,%d)",
				tc.ruSW, ru.Type, ru.NCables, ru.NChips, tc.typ, tc.nCables, tc.nChips,
			)
		}
		if ru.IDSW != tc.ruSW {
			t.Fatalf("invalid RU IDSW: got=%d, want=%d", ru.IDSW, tc.ruSW)
		}
	}
}

func TestITSFEEID(t *testing.T) {
	m := NewITS()
	for _, ru := range []uint16{0, 1, 47, 48, 102, 191} {
		for link := uint8(0); link < 3; link++ {
			fee := m.RUSW2FEEID(ru, link)
			if got := m.FEEID2RUSW(fee); got != ru {
				t.Fatalf("FEE ID round-trip failed: ru=%d link=%d fee=%#x got=%d",
					ru, link, fee, got,
				)
			}
		}
	}
}

func TestITSChipInfoRoundTrip(t *testing.T) {
	m := NewITS()
	for _, chipSW := range []int{0, 8, 9, 431, 432, 433, 6479, 6480, 24119} {
		ci := m.ChipInfoSW(chipSW)
		ru := m.RUInfoSW(ci.RU)
		if ci.ChipOnRU < 0 || ci.ChipOnRU >= ru.NChips {
			t.Fatalf("chip %d: invalid chip-on-RU %d (RU %d has %d chips)",
				chipSW, ci.ChipOnRU, ci.RU, ru.NChips,
			)
		}
		ch := m.ChipOnRUInfo(ru.Type, ci.ChipOnRU)
		if got := m.GlobalChipID(int(ch.ChipOnModuleHW), ch.CableHW, ru); got != chipSW {
			t.Fatalf("global chip ID round-trip failed: chip=%d got=%d", chipSW, got)
		}
	}
}

func TestITSCables(t *testing.T) {
	m := NewITS()
	if got, want := m.CablesOnRUType(IB), uint32(0x1ff); got != want {
		t.Fatalf("invalid IB lane mask: got=%#x, want=%#x", got, want)
	}
	if got, want := m.CablesOnRUType(ML), uint32(0xffff); got != want {
		t.Fatalf("invalid ML lane mask: got=%#x, want=%#x", got, want)
	}
	if got, want := m.CablesOnRUType(OL), uint32(0xfffffff); got != want {
		t.Fatalf("invalid OL lane mask: got=%#x, want=%#x", got, want)
	}

	for _, typ := range []RUType{IB, ML, OL} {
		for hw := uint8(0); int(hw) < cablesPerType[typ]; hw++ {
			flag := m.GBTHeaderRUType(typ, hw)
			if flag == 0xe0 || flag == 0xf0 {
				t.Fatalf("cable flag %#x collides with GBT markers", flag)
			}
			if got := flag & 0x1f; got != hw {
				t.Fatalf("cable HW ID not preserved in flag: got=%d, want=%d", got, hw)
			}
			if got := m.CableHW2SW(typ, hw); got != hw {
				t.Fatalf("invalid cable SW ID: got=%d, want=%d", got, hw)
			}
		}
	}
}
