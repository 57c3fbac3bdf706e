// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
)

const (
	// poolHeaderSize is reserved at the start of every request list arena.
	poolHeaderSize = 16
	// reqHeaderSize is the per-buffer bookkeeping overhead charged against
	// the arena in addition to the rounded payload.
	reqHeaderSize = 32
	reqAlign      = 4

	// MaxRequestListCapacity bounds a single request list arena.
	MaxRequestListCapacity = 64 << 20
)

// ErrBufferNotInUse is returned by Remove for a buffer not currently allocated from the list.
var ErrBufferNotInUse = errors.New("request buffer not in use")

type reqExtent struct {
	off, size int
}

// RequestBuffer is an in-use block of a RequestList holding one received
// message and its transport metadata. It stays valid until passed to Remove.
type RequestBuffer struct {
	list *RequestList
	off  int
	size int
	n    int

	Addr                  net.Addr
	Domain                TransportDomain
	TransportSecurityName string
}

// Data returns the stored message bytes. The slice aliases the arena.
func (b *RequestBuffer) Data() []byte {
	start := b.off + reqHeaderSize
	return b.list.arena[start : start+b.n : start+b.n]
}

// Len returns the stored message length.
func (b *RequestBuffer) Len() int {
	return b.n
}

// RequestList is a fixed-capacity arena from which request buffers are
// carved using best fit with tail splitting. Freed blocks are kept in
// address order and coalesced with both neighbours.
type RequestList struct {
	mu       sync.Mutex
	arena    []byte
	capacity int
	free     []reqExtent // sorted by off, never two adjacent
	inUse    map[*RequestBuffer]struct{}
}

// RequestListStats is a point-in-time view of a RequestList.
type RequestListStats struct {
	Capacity    int
	FreeBytes   int
	UsedBytes   int
	FreeBlocks  int
	Buffers     int
	LargestFree int
}

func alignUp(n int) int {
	return (n + reqAlign - 1) &^ (reqAlign - 1)
}

// NewRequestList creates a pool whose usable space is a single free block
// spanning everything after the pool header.
func NewRequestList(capacity int) (*RequestList, error) {
	if capacity < poolHeaderSize+reqHeaderSize+reqAlign || capacity > MaxRequestListCapacity {
		return nil, fmt.Errorf("%w: request list capacity %d", ErrOutOfMemory, capacity)
	}
	return &RequestList{
		arena:    make([]byte, capacity),
		capacity: capacity,
		free:     []reqExtent{{off: poolHeaderSize, size: capacity - poolHeaderSize}},
		inUse:    make(map[*RequestBuffer]struct{}),
	}, nil
}

// bestFit returns the index of the smallest free block of at least size
// octets, preferring the lowest address on ties, or -1.
func bestFit(free []reqExtent, size int) int {
	best := -1
	for i, e := range free {
		if e.size < size {
			continue
		}
		if best < 0 || e.size < free[best].size {
			best = i
		}
	}
	return best
}

// Add copies msg into the pool. It returns nil when no free block is large
// enough.
func (l *RequestList) Add(msg *Message) *RequestBuffer {
	required := reqHeaderSize + alignUp(len(msg.Data))

	l.mu.Lock()
	defer l.mu.Unlock()

	i := bestFit(l.free, required)
	if i < 0 {
		return nil
	}
	blk := &l.free[i]
	buf := &RequestBuffer{
		list:                  l,
		size:                  required,
		n:                     len(msg.Data),
		Addr:                  msg.Addr,
		Domain:                msg.Domain,
		TransportSecurityName: msg.TransportSecurityName,
	}
	if blk.size == required {
		buf.off = blk.off
		l.free = slices.Delete(l.free, i, i+1)
	} else {
		blk.size -= required
		buf.off = blk.off + blk.size
	}
	copy(l.arena[buf.off+reqHeaderSize:], msg.Data)
	l.inUse[buf] = struct{}{}
	return buf
}

// Remove returns buf to the free list, merging it with adjacent free blocks.
func (l *RequestList) Remove(buf *RequestBuffer) error {
	if buf == nil || buf.list != l {
		return ErrBufferNotInUse
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.inUse[buf]; !ok {
		return ErrBufferNotInUse
	}
	delete(l.inUse, buf)

	// first free block above buf
	i, _ := slices.BinarySearchFunc(l.free, buf.off, func(e reqExtent, off int) int {
		return e.off - off
	})
	end := buf.off + buf.size
	joinPred := i > 0 && l.free[i-1].off+l.free[i-1].size == buf.off
	joinSucc := i < len(l.free) && l.free[i].off == end

	switch {
	case joinPred && joinSucc:
		l.free[i-1].size += buf.size + l.free[i].size
		l.free = slices.Delete(l.free, i, i+1)
	case joinPred:
		l.free[i-1].size += buf.size
	case joinSucc:
		l.free[i].off = buf.off
		l.free[i].size += buf.size
	default:
		l.free = slices.Insert(l.free, i, reqExtent{off: buf.off, size: buf.size})
	}
	return nil
}

// Stats reports the current occupancy.
func (l *RequestList) Stats() RequestListStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := RequestListStats{
		Capacity:   l.capacity,
		FreeBlocks: len(l.free),
		Buffers:    len(l.inUse),
	}
	for _, e := range l.free {
		s.FreeBytes += e.size
		s.LargestFree = max(s.LargestFree, e.size)
	}
	for b := range l.inUse {
		s.UsedBytes += b.size
	}
	return s
}

// check verifies that free and in-use extents tile the arena exactly and
// that no two free blocks touch.
func (l *RequestList) check() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	type span struct {
		reqExtent
		free bool
	}
	spans := make([]span, 0, len(l.free)+len(l.inUse))
	for _, e := range l.free {
		spans = append(spans, span{e, true})
	}
	for b := range l.inUse {
		spans = append(spans, span{reqExtent{b.off, b.size}, false})
	}
	slices.SortFunc(spans, func(a, b span) int { return a.off - b.off })

	next := poolHeaderSize
	for i, s := range spans {
		if s.off != next {
			return fmt.Errorf("extent at %d, expected %d", s.off, next)
		}
		if i > 0 && s.free && spans[i-1].free {
			return fmt.Errorf("adjacent free blocks at %d", s.off)
		}
		next = s.off + s.size
	}
	if next != l.capacity {
		return fmt.Errorf("extents end at %d, capacity %d", next, l.capacity)
	}
	return nil
}
