// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"strings"
	"testing"

	"github.com/go-lpc/alpide/mapping"
)

func rusFrom(m mapping.Mapping) []RU {
	rus := make([]RU, m.NRUs())
	for i := range rus {
		info := m.RUInfoSW(uint16(i))
		rus[i] = RU{
			ID:    uint16(i),
			Type:  uint8(info.Type),
			Lanes: m.CablesOnRUType(info.Type),
			FEEs: [3]uint16{
				m.RUSW2FEEID(uint16(i), 0),
				m.RUSW2FEEID(uint16(i), 1),
				m.RUSW2FEEID(uint16(i), 2),
			},
		}
	}
	return rus
}

func TestCheck(t *testing.T) {
	m := mapping.NewITS()

	rus := rusFrom(m)
	if err := Check(rus, m); err != nil {
		t.Fatalf("consistent cabling flagged: %+v", err)
	}

	for _, tc := range []struct {
		name string
		mut  func(rus []RU)
		want string
	}{
		{
			name: "missing-ru",
			mut:  func(rus []RU) {}, // handled by truncation below
			want: "invalid number of RUs",
		},
		{
			name: "bad-type",
			mut:  func(rus []RU) { rus[0].Type = 2 },
			want: "invalid type",
		},
		{
			name: "bad-lanes",
			mut:  func(rus []RU) { rus[10].Lanes = 0x3 },
			want: "invalid lane mask",
		},
		{
			name: "bad-fee",
			mut:  func(rus []RU) { rus[42].FEEs[1] = 0xbeef },
			want: "invalid FEE ID",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rus := rusFrom(m)
			if tc.name == "missing-ru" {
				rus = rus[:len(rus)-1]
			}
			tc.mut(rus)
			err := Check(rus, m)
			if err == nil {
				t.Fatalf("inconsistent cabling not flagged")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want substring %q", err.Error(), tc.want)
			}
		})
	}
}

func TestCheckMasks(t *testing.T) {
	m := mapping.NewITS()

	if err := CheckMasks(map[uint16]uint32{0: 0x3, 102: 0x0800000}, m); err != nil {
		t.Fatalf("consistent masks flagged: %+v", err)
	}
	if err := CheckMasks(nil, m); err != nil {
		t.Fatalf("empty mask set flagged: %+v", err)
	}

	for _, tc := range []struct {
		name  string
		masks map[uint16]uint32
		want  string
	}{
		{
			name:  "unknown-ru",
			masks: map[uint16]uint32{999: 0x1},
			want:  "unknown RU",
		},
		{
			name:  "outside-lanes",
			masks: map[uint16]uint32{0: 0x1 << 20}, // IB RU has 9 lanes
			want:  "outside the RU lane mask",
		},
		{
			name:  "empty-row",
			masks: map[uint16]uint32{1: 0},
			want:  "empty masked-lanes row",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckMasks(tc.masks, m)
			if err == nil {
				t.Fatalf("inconsistent masks not flagged")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want substring %q", err.Error(), tc.want)
			}
		})
	}
}
