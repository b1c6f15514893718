// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/payload"
	"github.com/go-lpc/alpide/raw"
)

func TestProcess(t *testing.T) {
	its := mapping.NewITS()

	enc := raw.NewEncoder(its)
	_, err := enc.DigitsToRaw(
		[]raw.Digit{
			{ChipID: 0, Row: 5, Col: 9},
			{ChipID: 3, Row: 100, Col: 200},
		},
		raw.InteractionRecord{Orbit: 1024, BC: 101},
		0, 0,
	)
	if err != nil {
		t.Fatalf("could not encode digits: %+v", err)
	}
	sink := payload.New(cru.MaxPageBytes)
	for enc.FlushSuperPages(cru.PagesPerSuperpage, sink) != 0 {
	}

	fname := filepath.Join(t.TempDir(), "run42.raw")
	if err := os.WriteFile(fname, sink.Bytes(), 0644); err != nil {
		t.Fatalf("could not write raw file: %+v", err)
	}

	out := new(bytes.Buffer)
	if err := process(out, its, fname, true, true, false); err != nil {
		t.Fatalf("could not process file: %+v", err)
	}

	got := out.String()
	for _, want := range []string{
		"=== chip     0 === orbit=  1024 bc= 101",
		"pix=(5, 9)",
		"=== chip     3 ===",
		"pix=(100, 200)",
		"2 hits found in 2 non-empty chips",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in output:\n%s", want, got)
		}
	}
}
