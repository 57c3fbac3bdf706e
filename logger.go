// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

// LoggerInterface is the sink used for debug output. Both Print and Printf
// have the same signatures as package log in the standard library, so a
// *log.Logger can be plugged in directly:
//
//	engine, err := snmpengine.NewEngine(cfg,
//		snmpengine.WithLogger(log.New(os.Stderr, "snmpengine: ", 0)))
type LoggerInterface interface {
	Print(v ...any)
	Printf(format string, v ...any)
}

// Logger wraps a LoggerInterface. The zero value discards everything.
type Logger struct {
	logger LoggerInterface
	prefix string
}

func NewLogger(logger LoggerInterface) Logger {
	return Logger{
		logger: logger,
	}
}

// Named returns a Logger writing to the same sink with "name: " prepended
// to every line. Names nest: Named("usm").Named("cache") logs "usm: cache: ".
func (l Logger) Named(name string) Logger {
	l.prefix += name + ": "
	return l
}
