// Copyright 2021 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !snmpengine_nodebug

package snmpengine

func (l *Logger) Print(v ...any) {
	if l.logger == nil {
		return
	}
	if l.prefix != "" {
		v = append([]any{l.prefix}, v...)
	}
	l.logger.Print(v...)
}

func (l *Logger) Printf(format string, v ...any) {
	if l.logger != nil {
		l.logger.Printf(l.prefix+format, v...)
	}
}

// Enabled reports whether a sink is attached. Callers building hex dumps or
// SafeString output check it first.
func (l *Logger) Enabled() bool {
	return l.logger != nil
}
