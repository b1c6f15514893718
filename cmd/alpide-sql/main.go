// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command alpide-sql inspects the ALPIDE conditions database and
// cross-checks the stored cabling against the compiled-in mapping.
package main // import "github.com/go-lpc/alpide/cmd/alpide-sql"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-lpc/alpide/conddb"
	"github.com/go-lpc/alpide/mapping"
	_ "github.com/go-sql-driver/mysql"
)

const (
	dbname = "alpidesrv"
)

func main() {
	log.SetPrefix("alpide-sql: ")
	log.SetFlags(0)

	var (
		tag   = flag.String("cabling", "", "cabling tag to inspect")
		check = flag.Bool("check", true, "cross-check cabling against the compiled-in mapping")
	)

	flag.Parse()

	db, err := conddb.Open(dbname)
	if err != nil {
		log.Fatalf("could not open ALPIDE db: %+v", err)
	}
	defer db.Close()

	err = doQuery(db, *tag, *check)
	if err != nil {
		log.Fatalf("could not do query: %+v", err)
	}
}

func doQuery(db *conddb.DB, tag string, check bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if tag == "" {
		v, err := db.LastCablingTag(ctx)
		if err != nil {
			return fmt.Errorf("could not get last cabling tag: %w", err)
		}
		tag = v
		log.Printf("cabling: %q", tag)
	}

	rus, err := db.RUConfig(ctx, tag)
	if err != nil {
		return fmt.Errorf("could not get RU cabling (tag=%q): %w", tag, err)
	}
	log.Printf("rus: %d", len(rus))

	masks, err := db.MaskedLanes(ctx, tag)
	if err != nil {
		return fmt.Errorf("could not get masked lanes (tag=%q): %w", tag, err)
	}
	log.Printf("rus with masked lanes: %d", len(masks))

	if check {
		its := mapping.NewITS()
		err = conddb.Check(rus, its)
		if err != nil {
			return fmt.Errorf("cabling tag %q does not match the compiled-in mapping: %w", tag, err)
		}
		err = conddb.CheckMasks(masks, its)
		if err != nil {
			return fmt.Errorf("cabling tag %q carries inconsistent lane masks: %w", tag, err)
		}
		log.Printf("cabling tag %q consistent with the compiled-in mapping", tag)
	}

	return nil
}
