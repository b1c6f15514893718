// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command alpide-daq starts a TDAQ process decoding ALPIDE raw data
// and publishing per-chip pixel records on the /chips end-point.
package main // import "github.com/go-lpc/alpide/cmd/alpide-daq"

import (
	"context"
	"encoding/binary"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-lpc/alpide/chip"
	"github.com/go-lpc/alpide/internal/mmap"
	"github.com/go-lpc/alpide/mapping"
	"github.com/go-lpc/alpide/raw"
)

func main() {
	cmd := flags.New()

	dev := daq{
		fname: os.Getenv("ALPIDE_RAW_FILE"),
	}
	if len(cmd.Args) > 0 {
		dev.fname = cmd.Args[0]
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/chips", dev.chips)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type daq struct {
	fname string

	src *mmap.Handle
	dec *raw.Decoder

	n    int
	data chan []byte
}

func (dev *daq) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return nil
}

func (dev *daq) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return dev.reset(ctx)
}

func (dev *daq) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return dev.reset(ctx)
}

func (dev *daq) reset(ctx tdaq.Context) error {
	if dev.src != nil {
		_ = dev.src.Close()
	}
	src, err := mmap.Open(dev.fname)
	if err != nil {
		ctx.Msg.Errorf("could not open raw file %q: %+v", dev.fname, err)
		return err
	}
	dev.src = src
	dev.dec = raw.NewDecoder(mapping.NewITS(), src)
	dev.data = make(chan []byte, 1024)
	dev.n = 0
	return nil
}

func (dev *daq) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (dev *daq) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command... -> n=%d", dev.n)
	st := dev.dec.Stat()
	ctx.Msg.Infof("decoded %d hits in %d non-empty chips (%d pages)",
		st.NHitsDecoded, st.NNonEmptyChips, st.NPagesProcessed,
	)
	return nil
}

func (dev *daq) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if dev.src != nil {
		return dev.src.Close()
	}
	return nil
}

func (dev *daq) chips(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-dev.data:
		dst.Body = data
	}
	return nil
}

func (dev *daq) run(ctx tdaq.Context) error {
	var data chip.Data
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			if !dev.dec.NextChipData(&data) {
				<-ctx.Ctx.Done()
				return nil
			}
			select {
			case dev.data <- pack(&data):
				dev.n++
			default:
			}
		}
	}
}

// pack serializes one chip record: chipID, orbit, bc, trigger, errors,
// npix, then (row, col) pairs, all little-endian u32.
func pack(data *chip.Data) []byte {
	raw := make([]byte, 0, 4*(6+2*len(data.Pixels)))
	u32 := func(v uint32) {
		raw = binary.LittleEndian.AppendUint32(raw, v)
	}
	u32(uint32(data.ChipID))
	u32(data.Orbit)
	u32(uint32(data.BC))
	u32(data.Trigger)
	u32(data.Errors)
	u32(uint32(len(data.Pixels)))
	for _, pix := range data.Pixels {
		u32(uint32(pix.Row))
		u32(uint32(pix.Col))
	}
	return raw
}
