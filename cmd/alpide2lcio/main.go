// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command alpide2lcio converts an ALPIDE raw data file to an LCIO one.
package main // import "github.com/go-lpc/alpide/cmd/alpide2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"

	"go-hep.org/x/hep/lcio"

	"github.com/go-lpc/alpide/internal/mmap"
	"github.com/go-lpc/alpide/internal/xcnv"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/raw"
)

var (
	msg = log.New(os.Stdout, "alpide2lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.lcio", "path to output LCIO file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run   = flag.Int("run", 0, "run number")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: alpide2lcio [OPTIONS] file.raw

ex:
 $> alpide2lcio -o out.lcio -lvl=9 -run=42 ./input.raw

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input ALPIDE raw file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, int32(*run), flag.Arg(0))
	if err != nil {
		msg.Fatalf("could not convert ALPIDE file: %+v", err)
	}
}

func process(oname string, lvl int, run int32, fname string) error {
	f, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open ALPIDE file: %w", err)
	}
	defer f.Close()

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	dec := raw.NewDecoder(mapping.NewITS(), f)
	err = xcnv.ALPIDE2LCIO(w, dec, run, msg)
	if err != nil {
		return fmt.Errorf("could not convert ALPIDE to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}
