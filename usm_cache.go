// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import "sync"

// usmCacheSlot carries the credentials of a verified request to the
// matching Secure call so the user table is not consulted twice.
type usmCacheSlot struct {
	auth         AuthProtocol
	priv         PrivProtocol
	userName     string
	securityName string
	authKey      []byte
	privKey      []byte

	occupied bool
	gen      uint64
}

// usmStateRef is the SecurityStateRef handed out by the USM.
type usmStateRef struct {
	idx int
	gen uint64
}

// usmCache is a fixed pool of slots. Exhaustion is a hard failure.
type usmCache struct {
	mu    sync.Mutex
	slots []usmCacheSlot
	gen   uint64
}

func newUSMCache(size int) *usmCache {
	return &usmCache{slots: make([]usmCacheSlot, size)}
}

func (c *usmCache) claim() (usmStateRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.slots {
		if !c.slots[i].occupied {
			c.gen++
			c.slots[i] = usmCacheSlot{occupied: true, gen: c.gen}
			return usmStateRef{idx: i, gen: c.gen}, nil
		}
	}
	return usmStateRef{}, ErrCacheFull
}

func (c *usmCache) fill(ref usmStateRef, slot usmCacheSlot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := &c.slots[ref.idx]; s.occupied && s.gen == ref.gen {
		slot.occupied, slot.gen = true, ref.gen
		*s = slot
	}
}

// take returns the slot contents and frees it.
func (c *usmCache) take(ref usmStateRef) (usmCacheSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref.idx < 0 || ref.idx >= len(c.slots) {
		return usmCacheSlot{}, false
	}
	s := c.slots[ref.idx]
	if !s.occupied || s.gen != ref.gen {
		return usmCacheSlot{}, false
	}
	c.slots[ref.idx] = usmCacheSlot{}
	return s, true
}

func (c *usmCache) release(ref usmStateRef) {
	c.take(ref)
}

func (c *usmCache) inUse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.slots {
		if c.slots[i].occupied {
			n++
		}
	}
	return n
}
