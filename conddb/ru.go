// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/alpide/mapping"
)

// RU is one readout-unit row of the cabling table.
type RU struct {
	ID    uint16 // software RU ID
	Type  uint8  // RU flavour (0: IB, 1: ML, 2: OL)
	Lanes uint32 // lane mask of the cables read out by this RU
	FEEs  [3]uint16
}

// RUConfig returns the readout-unit cabling rows of the given cabling
// tag, ordered by software RU ID.
func (db *DB) RUConfig(ctx context.Context, tag string) ([]RU, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT ru, rutype, lanes, fee0, fee1, fee2 FROM rus WHERE cabling=? ORDER BY ru",
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query RU cabling (tag=%q): %w", tag, err)
	}
	defer rows.Close()

	var rus []RU
	for rows.Next() {
		var ru RU
		err = rows.Scan(&ru.ID, &ru.Type, &ru.Lanes, &ru.FEEs[0], &ru.FEEs[1], &ru.FEEs[2])
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan RU cabling row: %w", err)
		}
		rus = append(rus, ru)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for RU cabling: %w", err)
	}

	return rus, nil
}

// Check compares the cabling rows with the compiled-in mapping tables
// and returns an error describing the first mismatch.
func Check(rus []RU, m mapping.Mapping) error {
	if got, want := len(rus), m.NRUs(); got != want {
		return fmt.Errorf("conddb: invalid number of RUs: got=%d, want=%d", got, want)
	}
	for _, ru := range rus {
		info := m.RUInfoSW(ru.ID)
		if got, want := mapping.RUType(ru.Type), info.Type; got != want {
			return fmt.Errorf("conddb: RU %d: invalid type: got=%v, want=%v", ru.ID, got, want)
		}
		if got, want := ru.Lanes, m.CablesOnRUType(info.Type); got != want {
			return fmt.Errorf("conddb: RU %d: invalid lane mask: got=%#x, want=%#x", ru.ID, got, want)
		}
		for link, fee := range ru.FEEs {
			if got, want := fee, m.RUSW2FEEID(ru.ID, uint8(link)); got != want {
				return fmt.Errorf("conddb: RU %d link %d: invalid FEE ID: got=%#x, want=%#x",
					ru.ID, link, got, want)
			}
		}
	}
	return nil
}

// CheckMasks verifies that every masked-lane word names an existing RU
// and stays within the lanes that RU actually reads out.
func CheckMasks(masks map[uint16]uint32, m mapping.Mapping) error {
	for ru, mask := range masks {
		if int(ru) >= m.NRUs() {
			return fmt.Errorf("conddb: masked lanes for unknown RU %d", ru)
		}
		lanes := m.CablesOnRUType(m.RUInfoSW(ru).Type)
		if mask&^lanes != 0 {
			return fmt.Errorf("conddb: RU %d: masked lanes %#x outside the RU lane mask %#x",
				ru, mask, lanes)
		}
		if mask == 0 {
			return fmt.Errorf("conddb: RU %d: empty masked-lanes row", ru)
		}
	}
	return nil
}
