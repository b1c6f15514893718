// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/payload"
	"github.com/go-lpc/alpide/raw"
	"go-hep.org/x/hep/lcio"
)

func TestALPIDE2LCIO(t *testing.T) {
	const run = 63
	var (
		its = mapping.NewITS()
		msg = log.New(io.Discard, "", 0)
	)

	enc := raw.NewEncoder(its, raw.WithLogger(msg))
	triggers := []raw.InteractionRecord{
		{Orbit: 1, BC: 10},
		{Orbit: 2, BC: 20},
	}
	digits := [][]raw.Digit{
		{{ChipID: 0, Row: 5, Col: 9}},
		{{ChipID: 1, Row: 6, Col: 10}, {ChipID: 1, Row: 6, Col: 11}},
	}
	for i, ir := range triggers {
		if _, err := enc.DigitsToRaw(digits[i], ir, 0, 0); err != nil {
			t.Fatalf("could not encode trigger %d: %+v", i, err)
		}
	}
	sink := payload.New(cru.MaxPageBytes)
	for enc.FlushSuperPages(cru.PagesPerSuperpage, sink) != 0 {
	}

	fname := filepath.Join(t.TempDir(), "out.lcio")
	w, err := lcio.Create(fname)
	if err != nil {
		t.Fatalf("could not create LCIO file: %+v", err)
	}
	defer w.Close()

	dec := raw.NewDecoder(its, bytes.NewReader(sink.Bytes()), raw.WithLogger(msg))
	if err := ALPIDE2LCIO(w, dec, run, msg); err != nil {
		t.Fatalf("could not convert to LCIO: %+v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("could not close LCIO file: %+v", err)
	}

	r, err := lcio.Open(fname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer r.Close()

	want := [][]int32{
		{1, 10, int32(cru.TriggerPhT), 1, 0, 0, 1, 5<<16 | 9},
		{2, 20, int32(cru.TriggerPhT), 1, 1, 0, 2, 6<<16 | 10, 6<<16 | 11},
	}
	ievt := 0
	for r.Next() {
		evt := r.Event()
		if evt.RunNumber != run {
			t.Fatalf("invalid run number: %d", evt.RunNumber)
		}
		obj := evt.Get("ALPIDERawHits").(*lcio.GenericObject)
		if got := obj.Data[0].I32s; !reflect.DeepEqual(got, want[ievt]) {
			t.Fatalf("event %d: invalid payload:\ngot= %v\nwant=%v", ievt, got, want[ievt])
		}
		ievt++
	}
	if ievt != len(want) {
		t.Fatalf("invalid number of events: got=%d, want=%d", ievt, len(want))
	}
}
