// Copyright 2021 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !snmpengine_nodebug

package snmpengine

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(log.New(&buf, "", 0))
	assert.True(t, root.Enabled())

	usm := root.Named("usm")
	usm.Printf("unknown user %q", "bob")
	cache := usm.Named("cache")
	cache.Print("full")
	root.Print("plain")
	assert.Equal(t, "usm: unknown user \"bob\"\nusm: cache: full\nplain\n", buf.String())

	var zero Logger
	assert.False(t, zero.Enabled())
	named := zero.Named("x")
	named.Printf("dropped %d", 1)
}
