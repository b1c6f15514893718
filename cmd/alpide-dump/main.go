// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// alpide-dump decodes and displays ALPIDE raw data files.
//
// Usage: alpide-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//  $> alpide-dump ./testdata/run42.raw
//  === chip   137 === orbit=  1024 bc= 101 trig=0x10 pixels=3
//    pix=(120, 17) (120, 18) (121, 17)
//  [...]
package main // import "github.com/go-lpc/alpide/cmd/alpide-dump"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/alpide/chip"
	"github.com/go-lpc/alpide/internal/mmap"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/raw"
)

func main() {
	log.SetPrefix("alpide-dump: ")
	log.SetFlags(0)

	var (
		pad   = flag.Bool("pad", true, "decode 128-bit padded GBT words")
		stats = flag.Bool("stats", false, "print decoding statistics")
		empty = flag.Bool("empty", false, "print empty chips as well")
	)

	flag.Usage = func() {
		fmt.Printf(`alpide-dump decodes and displays ALPIDE raw data files.

Usage: alpide-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> alpide-dump ./testdata/run42.raw
 === chip   137 === orbit=  1024 bc= 101 trig=0x10 pixels=3
   pix=(120, 17) (120, 18) (121, 17)
 [...]

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input ALPIDE raw file")
	}

	// independent streams decode on independent codec instances.
	var (
		grp  errgroup.Group
		its  = mapping.NewITS()
		outs = make([]io.Reader, flag.NArg())
	)
	for i, fname := range flag.Args() {
		i, fname := i, fname
		grp.Go(func() error {
			f, err := os.CreateTemp("", "alpide-dump-")
			if err != nil {
				return fmt.Errorf("could not create scratch file: %w", err)
			}
			os.Remove(f.Name())
			err = process(f, its, fname, *pad, *stats, *empty)
			if err != nil {
				return fmt.Errorf("could not dump file %q: %w", fname, err)
			}
			_, err = f.Seek(0, io.SeekStart)
			outs[i] = f
			return err
		})
	}
	err := grp.Wait()
	if err != nil {
		log.Fatalf("%+v", err)
	}
	for _, out := range outs {
		_, _ = io.Copy(os.Stdout, out)
		if c, ok := out.(io.Closer); ok {
			c.Close()
		}
	}
}

func process(w io.Writer, its mapping.Mapping, fname string, pad, stats, empty bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := mmap.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	dec := raw.NewDecoder(its, f,
		raw.WithPadding128(pad),
		raw.WithKeepEmptyChips(empty),
	)

	var data chip.Data
	for dec.NextChipData(&data) {
		fmt.Fprintf(wbuf, "=== chip %5d === orbit=%6d bc=%4d trig=0x%x pixels=%d",
			data.ChipID, data.Orbit, data.BC, data.Trigger, len(data.Pixels),
		)
		if data.Errors != 0 {
			fmt.Fprintf(wbuf, " errors=0x%x", data.Errors)
		}
		fmt.Fprintln(wbuf)
		if len(data.Pixels) > 0 {
			fmt.Fprintf(wbuf, "  pix=")
			for _, pix := range data.Pixels {
				fmt.Fprintf(wbuf, "(%d, %d) ", pix.Row, pix.Col)
			}
			fmt.Fprintln(wbuf)
		}
	}

	if stats {
		st := dec.Stat()
		st.Print(wbuf)
		for ru := 0; ru < its.NRUs(); ru++ {
			if rust := dec.DecodingStatSW(uint16(ru)); rust != nil && rust.NErrors() != 0 {
				fmt.Fprintf(wbuf, "--- RU %d ---\n", ru)
				rust.Print(wbuf, true)
			}
		}
	}

	return nil
}
