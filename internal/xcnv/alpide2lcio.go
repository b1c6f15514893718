// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"
	"log"

	"github.com/go-lpc/alpide/chip"
	"github.com/go-lpc/alpide/raw"
	"go-hep.org/x/hep/lcio"
)

// ALPIDE2LCIO drains the decoder and writes its chip data to w, one
// LCIO event per trigger.
func ALPIDE2LCIO(w *lcio.Writer, dec *raw.Decoder, run int32, msg *log.Logger) error {
	err := w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  "ITS",
		Descr:     "ALPIDE raw pixel data",
		Params: lcio.Params{
			Ints: map[string][]int32{
				"NRUs": {int32(dec.Mapping().NRUs())},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not write run header: %w", err)
	}

	// pull with a fresh record each time: the decoder recycles the
	// storage handed back through its argument.
	next := func() (chip.Data, bool) {
		var cd chip.Data
		ok := dec.NextChipData(&cd)
		return cd, ok
	}

	var (
		ievt  int32
		chips []chip.Data
	)
	cur, ok := next()
	for ok {
		chips = append(chips[:0], cur)
		for {
			cur, ok = next()
			if !ok || cur.Orbit != chips[0].Orbit || cur.BC != chips[0].BC {
				break
			}
			chips = append(chips, cur)
		}

		if ievt%100 == 0 {
			msg.Printf("processing evt %d...", ievt)
		}
		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: ievt,
			TimeStamp:   int64(chips[0].Orbit)<<12 | int64(chips[0].BC),
			Detector:    "ITS",
		}
		evt.Add("ALPIDERawHits", &lcio.GenericObject{
			Data: []lcio.GenericObjectData{
				{I32s: i32sFrom(chips)},
			},
		})
		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write event %d: %w", ievt, err)
		}
		ievt++
	}

	return nil
}

// i32sFrom packs the chip data of one trigger:
//
//	orbit, bc, trigger, nchips,
//	then per chip: chipID, errors, npix, (row<<16|col)...
func i32sFrom(chips []chip.Data) []int32 {
	i32s := []int32{
		int32(chips[0].Orbit),
		int32(chips[0].BC),
		int32(chips[0].Trigger),
		int32(len(chips)),
	}
	for _, cd := range chips {
		i32s = append(i32s,
			int32(cd.ChipID),
			int32(cd.Errors),
			int32(len(cd.Pixels)),
		)
		for _, pix := range cd.Pixels {
			i32s = append(i32s, int32(pix.Row)<<16|int32(pix.Col))
		}
	}
	return i32s
}
