// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert decoded ALPIDE data to LCIO.
package xcnv // import "github.com/go-lpc/alpide/internal/xcnv"
