// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"math"
	"sync"
	"time"
)

// EngineBootsLatched is the snmpEngineBoots value after which the engine
// refuses every authenticated message until reconfigured. It is the upper
// bound of the msgAuthoritativeEngineBoots INTEGER (RFC 3414 §2.2.2); larger
// configured values are clamped to it.
const EngineBootsLatched = math.MaxInt32

// timeWindow is the RFC 3414 §2.2.3 window in seconds.
const timeWindow = 150

// EngineClock tracks snmpEngineBoots and snmpEngineTime.
type EngineClock struct {
	mu    sync.Mutex
	boots uint32
	start time.Time
	now   func() time.Time
}

// NewEngineClock starts a clock at the given snmpEngineBoots.
func NewEngineClock(boots uint32) *EngineClock {
	return &EngineClock{boots: min(boots, EngineBootsLatched), start: time.Now(), now: time.Now}
}

// Now returns the current boots and engine time in seconds. An engine time
// past 2^31-1 starts a new boot cycle (RFC 3414 §2.2.2).
func (c *EngineClock) Now() (boots, engineTime uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.start) / time.Second
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > math.MaxInt32 {
		c.rebootLocked()
		elapsed = 0
	}
	return min(c.boots, EngineBootsLatched), uint32(elapsed)
}

// Uptime returns hundredths of a second since the current boot, truncated
// to TimeTicks.
func (c *EngineClock) Uptime() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.now().Sub(c.start) / (10 * time.Millisecond))
}

// Reboot starts a new boot cycle and returns the new boots value.
func (c *EngineClock) Reboot() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebootLocked()
	return c.boots
}

func (c *EngineClock) rebootLocked() {
	if c.boots < EngineBootsLatched {
		c.boots++
	} else {
		c.boots = EngineBootsLatched
	}
	c.start = c.now()
}

// inWindow reports whether a message stamped with boots and engineTime is
// acceptable at the local clock.
func (c *EngineClock) inWindow(boots, engineTime uint32) bool {
	localBoots, localTime := c.Now()
	if localBoots >= EngineBootsLatched || boots != localBoots {
		return false
	}
	diff := int64(localTime) - int64(engineTime)
	return diff >= -timeWindow && diff <= timeWindow
}
