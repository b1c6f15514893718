// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// alpide-skim rewrites ALPIDE raw data with fixed 8KB CRU pages and
// 128-bit padded GBT words to packed 80-bit words and tight pages.
//
// Usage: alpide-skim [OPTIONS] FILE
//
// Example:
//
//  $> alpide-skim -o out.raw ./run42.raw
//  $> alpide-skim -z -o out.raw.zst ./run42.raw
package main // import "github.com/go-lpc/alpide/cmd/alpide-skim"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/go-lpc/alpide/internal/mmap"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/payload"
	"github.com/go-lpc/alpide/raw"
)

func main() {
	log.SetPrefix("alpide-skim: ")
	log.SetFlags(0)

	var (
		oname = flag.String("o", "out.raw", "path to output raw file")
		zip   = flag.Bool("z", false, "compress output with zstd")
	)

	flag.Usage = func() {
		fmt.Printf(`alpide-skim rewrites 8KB CRU pages with 128-bit padded GBT words
to packed 80-bit words and tight pages.

Usage: alpide-skim [OPTIONS] FILE

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing path to input ALPIDE raw file")
	}

	err := process(*oname, flag.Arg(0), *zip)
	if err != nil {
		log.Fatalf("could not skim file %q: %+v", flag.Arg(0), err)
	}
}

func process(oname, fname string, zip bool) error {
	f, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	dec := raw.NewDecoder(mapping.NewITS(), f)
	out := payload.New(f.Len())
	for dec.SkimNextRUData(out) {
	}

	o, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", oname, err)
	}
	defer o.Close()

	var w io.Writer = o
	var zw *zstd.Encoder
	if zip {
		zw, err = zstd.NewWriter(o)
		if err != nil {
			return fmt.Errorf("could not create zstd writer: %w", err)
		}
		w = zw
	}

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("could not write skimmed data: %w", err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("could not flush zstd writer: %w", err)
		}
	}

	st := dec.Stat()
	log.Printf("%d pages, %d bytes -> %d bytes", st.NPagesProcessed, f.Len(), out.Size())

	return o.Close()
}
