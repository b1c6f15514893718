// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cru describes the CRU page envelope of ALPIDE raw data: the
// Raw Data Header (RDH) prefixing every page and the 80-bit GBT words
// carried inside it.
package cru // import "github.com/go-lpc/alpide/cru"

const (
	MaxLinksPerRU  = 3        // max number of GBT links per RU
	MaxCablesPerRU = 28       // max number of cables an RU can read out
	MaxChipsPerRU  = 196      // max number of chips an RU can read out
	MaxPageBytes   = 8 * 1024 // max size of a CRU page in bytes (8KB)

	PagesPerSuperpage = 256 // number of CRU pages per superpage

	WordLen       = 10 // size of an 80-bit GBT word
	PaddedWordLen = 16 // size of a GBT word padded to 128 bits
)

// Trigger-type bits carried in the RDH.
const (
	TriggerPhT uint32 = 0x1 << 4 // physics trigger
	TriggerSOT uint32 = 0x1 << 7 // start of timeframe
)
