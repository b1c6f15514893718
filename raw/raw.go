// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package raw encodes and decodes the ALPIDE raw data format as
// transported over GBT links and packed into CRU pages.
//
// The Decoder is a pull iterator over per-chip pixel records: it caches
// multi-page trigger payloads per (RU, link), demultiplexes GBT words
// back into per-cable ALPIDE streams and validates the structural
// invariants of the format, counting violations instead of failing.
// The Encoder performs the inverse operation, turning per-chip digit
// records of a single trigger into framed CRU pages.
package raw // import "github.com/go-lpc/alpide/raw"

import (
	"log"
	"os"

	"github.com/go-lpc/alpide/chip"
	"github.com/go-lpc/alpide/cru"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/payload"
)

// InteractionRecord identifies a bunch crossing.
type InteractionRecord struct {
	Orbit uint32
	BC    uint16
}

// Digit is one fired pixel of one chip, the encoder input and the
// elementary decoder output.
type Digit struct {
	ChipID int
	Row    uint16
	Col    uint16
}

// RULink buffers the page-framed byte stream of one (RU, link).
type RULink struct {
	data         payload.Buffer
	lastPageSize int    // size of the last added page = offset from the end to its RDH
	nTriggers    int    // number of triggers buffered (the last one might be incomplete)
	lanes        uint32 // lanes served by this link
}

// ruDecodeData aggregates the per-trigger decoding state of one RU.
type ruDecodeData struct {
	cableData [cru.MaxCablesPerRU]payload.Buffer // cable data in compressed ALPIDE format
	cableHWID [cru.MaxCablesPerRU]uint8          // HW ID of the cable buffered in the same slot
	chipsData [cru.MaxChipsPerRU]chip.Data       // fully decoded chips
	links     [cru.MaxLinksPerRU]*RULink
	stat      RUDecodingStat

	nCables         int // number of cables decoded for the current trigger
	nChipsFired     int // number of chips with data or with error flags
	lastChipChecked int // next chip to hand out among nChipsFired
	info            *mapping.RUInfo
}

func (ru *ruDecodeData) clearTrigger() {
	for i := ru.nCables; i > 0; i-- {
		ru.cableData[i-1].Clear()
	}
	ru.nCables = 0
}

func (ru *ruDecodeData) clear() {
	ru.clearTrigger()
	ru.stat.Clear()
	ru.nChipsFired = 0
	ru.lastChipChecked = 0
}

// ruSlab is a fixed-capacity store of RU decode containers, densely
// packed and indexed through a sparse ruSW -> slot table.
type ruSlab struct {
	rus   []ruDecodeData
	entry []int // ruSW -> slot, -1 meaning absent
	nRUs  int
}

func newRUSlab(n int) ruSlab {
	s := ruSlab{
		rus:   make([]ruDecodeData, n),
		entry: make([]int, n),
	}
	for i := range s.entry {
		s.entry[i] = -1
	}
	return s
}

func (s *ruSlab) get(ruSW uint16) *ruDecodeData {
	if int(ruSW) >= len(s.entry) || s.entry[ruSW] < 0 {
		return nil
	}
	return &s.rus[s.entry[ruSW]]
}

func (s *ruSlab) getCreate(ruSW uint16, mp mapping.Mapping) *ruDecodeData {
	if ru := s.get(ruSW); ru != nil {
		return ru
	}
	s.entry[ruSW] = s.nRUs
	ru := &s.rus[s.nRUs]
	s.nRUs++
	ru.info = mp.RUInfoSW(ruSW)
	return ru
}

// Raw-buffer sizing: keep at least RawBufferMargin bytes uploaded so
// that a multi-page walk never runs out of look-ahead.
const (
	RawBufferMargin = 5000000
	RawBufferSize   = 10000000 + 2*RawBufferMargin
)

type rwConfig struct {
	padding128         bool
	imposeMaxPage      bool
	minTriggersToCache int
	keepEmptyChips     bool
	verbose            int
	msg                *log.Logger
}

func newRWConfig() rwConfig {
	return rwConfig{
		padding128:         true,
		imposeMaxPage:      true,
		minTriggersToCache: cru.PagesPerSuperpage + 10,
		msg:                log.New(os.Stderr, "alpide: ", 0),
	}
}

func (cfg *rwConfig) gbtWordSize() int {
	if cfg.padding128 {
		return cru.PaddedWordLen
	}
	return cru.WordLen
}

// Option configures an Encoder or a Decoder.
type Option func(cfg *rwConfig)

// WithPadding128 selects between 16-byte GBT words with zero padding
// (the default) and bare 10-byte words. The choice is frozen for the
// lifetime of the stream.
func WithPadding128(v bool) Option {
	return func(cfg *rwConfig) { cfg.padding128 = v }
}

// WithImposeMaxPage controls whether written pages are padded to the
// maximal CRU page size (the default).
func WithImposeMaxPage(v bool) Option {
	return func(cfg *rwConfig) { cfg.imposeMaxPage = v }
}

// WithMinTriggersToCache sets the number of triggers to buffer per link
// before decoding starts. Values not above the superpage size are
// clamped to one more than it.
func WithMinTriggersToCache(n int) Option {
	return func(cfg *rwConfig) {
		if n <= cru.PagesPerSuperpage {
			n = cru.PagesPerSuperpage + 1
		}
		cfg.minTriggersToCache = n
	}
}

// WithKeepEmptyChips makes the decoder hand out a pixel-less chip
// record for every chip-empty frame instead of dropping them.
func WithKeepEmptyChips(v bool) Option {
	return func(cfg *rwConfig) { cfg.keepEmptyChips = v }
}

// WithVerbosity sets the debug-print level.
func WithVerbosity(v int) Option {
	return func(cfg *rwConfig) { cfg.verbose = v }
}

// WithLogger routes diagnostics to msg.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *rwConfig) { cfg.msg = msg }
}

// isSameRUAndTrigger reports whether next continues the multi-page
// data described by prev: same FEE, same trigger and heartbeat
// identity, overlapping trigger type and a non-wrapped page counter.
func isSameRUAndTrigger(prev, next *cru.RDH) bool {
	if next.PageCnt == 0 || next.FEEID != prev.FEEID ||
		next.TriggerOrbit != prev.TriggerOrbit ||
		next.TriggerBC != prev.TriggerBC ||
		next.HeartbeatOrbit != prev.HeartbeatOrbit ||
		next.HeartbeatBC != prev.HeartbeatBC ||
		next.TriggerType&prev.TriggerType == 0 {
		return false
	}
	return true
}
