// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the conditions and cabling
// database of the ALPIDE readout.
package conddb // import "github.com/go-lpc/alpide/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve conditions data
// and cabling data from the ALPIDE readout database.
type DB struct {
	db   *sql.DB
	name string // name of the conditions database
}

// Open opens a connection to the conditions database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastCablingTag returns the tag of the most recent cabling set.
func (db *DB) LastCablingTag(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT tag FROM cablings ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return tag, fmt.Errorf("conddb: could not query cabling tag: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&tag)
		if err != nil {
			return tag, fmt.Errorf("conddb: could not get cabling tag value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return tag, fmt.Errorf("conddb: could not scan db for cabling tag: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return tag, fmt.Errorf("conddb: context error while retrieving cabling tag: %w", err)
	}

	return tag, nil
}

// MaskedLanes returns, per software RU ID, the mask of lanes excluded
// from readout under the given cabling tag. RUs with no masked lanes
// have no row.
func (db *DB) MaskedLanes(ctx context.Context, tag string) (map[uint16]uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT ru, lanes FROM masked_lanes WHERE cabling=? ORDER BY ru",
		tag,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query masked lanes (tag=%q): %w", tag, err)
	}
	defer rows.Close()

	masks := make(map[uint16]uint32)
	for rows.Next() {
		var (
			ru    uint16
			lanes uint32
		)
		err = rows.Scan(&ru, &lanes)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan masked-lanes row: %w", err)
		}
		masks[ru] = lanes
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for masked lanes: %w", err)
	}

	return masks, nil
}
