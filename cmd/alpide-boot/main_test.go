// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunCleanExit(t *testing.T) {
	sup := supervisor{
		dir:      t.TempDir(),
		restarts: 1,
		backoff:  10 * time.Millisecond,
	}
	err := run(&sup, []string{"true"})
	if err != nil {
		t.Fatalf("could not supervise clean process: %+v", err)
	}
	if _, err := os.Stat(filepath.Join(sup.dir, "true.log")); err != nil {
		t.Fatalf("missing process log file: %+v", err)
	}
}

func TestRunCrashBudget(t *testing.T) {
	sup := supervisor{
		dir:      t.TempDir(),
		restarts: 2,
		backoff:  10 * time.Millisecond,
	}
	err := run(&sup, []string{"false"})
	if err == nil {
		t.Fatalf("crashing process not reported")
	}
	if !strings.Contains(err.Error(), "kept crashing") {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	sup := supervisor{dir: t.TempDir()}
	if err := run(&sup, []string{"  "}); err == nil {
		t.Fatalf("empty command line not reported")
	}
}
