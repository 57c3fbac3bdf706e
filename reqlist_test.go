// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(n int) *Message {
	return &Message{Data: bytes.Repeat([]byte{0x5a}, n)}
}

// blockFor returns the arena size charged for a payload of n octets.
func blockFor(n int) int {
	return reqHeaderSize + alignUp(n)
}

func TestNewRequestListBounds(t *testing.T) {
	_, err := NewRequestList(poolHeaderSize)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	_, err = NewRequestList(MaxRequestListCapacity + 1)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	l, err := NewRequestList(4096)
	require.NoError(t, err)
	s := l.Stats()
	assert.Equal(t, 4096-poolHeaderSize, s.FreeBytes)
	assert.Equal(t, 1, s.FreeBlocks)
	require.NoError(t, l.check())
}

func TestRequestListRoundTrip(t *testing.T) {
	l, err := NewRequestList(4096)
	require.NoError(t, err)

	msg := &Message{Data: []byte{0x30, 0x03, 0x02, 0x01, 0x01}, Domain: DomainUDPIPv4, TransportSecurityName: "tsm"}
	buf := l.Add(msg)
	require.NotNil(t, buf)
	assert.Equal(t, msg.Data, buf.Data())
	assert.Equal(t, len(msg.Data), buf.Len())
	assert.Equal(t, DomainUDPIPv4, buf.Domain)
	assert.Equal(t, "tsm", buf.TransportSecurityName)

	// the copy is independent of the caller's slice
	msg.Data[0] = 0
	assert.Equal(t, byte(0x30), buf.Data()[0])

	require.NoError(t, l.check())
	require.NoError(t, l.Remove(buf))
	assert.ErrorIs(t, l.Remove(buf), ErrBufferNotInUse)

	s := l.Stats()
	assert.Equal(t, 1, s.FreeBlocks)
	assert.Equal(t, 0, s.Buffers)
	assert.Equal(t, 4096-poolHeaderSize, s.FreeBytes)
	require.NoError(t, l.check())
}

func TestRequestListRemoveForeign(t *testing.T) {
	a, err := NewRequestList(1024)
	require.NoError(t, err)
	b, err := NewRequestList(1024)
	require.NoError(t, err)

	buf := a.Add(payload(10))
	require.NotNil(t, buf)
	assert.ErrorIs(t, b.Remove(buf), ErrBufferNotInUse)
	assert.ErrorIs(t, b.Remove(nil), ErrBufferNotInUse)
	require.NoError(t, a.Remove(buf))
}

func TestBestFitChoosesSmallestAdequate(t *testing.T) {
	free := []reqExtent{{off: 0, size: 50}, {off: 100, size: 120}, {off: 300, size: 80}}
	assert.Equal(t, 2, bestFit(free, 60))
	assert.Equal(t, 0, bestFit(free, 50))
	assert.Equal(t, 1, bestFit(free, 81))
	assert.Equal(t, -1, bestFit(free, 121))

	// lowest address wins a tie
	tie := []reqExtent{{off: 0, size: 64}, {off: 100, size: 64}}
	assert.Equal(t, 0, bestFit(tie, 60))
}

// TestRequestListBestFit carves holes of 52, 120 and 80 octets separated by
// live buffers and checks a 60 octet request lands in the 80 octet hole.
func TestRequestListBestFit(t *testing.T) {
	const capacity = poolHeaderSize + 1000
	l, err := NewRequestList(capacity)
	require.NoError(t, err)

	h1 := l.Add(payload(20)) // 52
	s1 := l.Add(payload(4))
	h2 := l.Add(payload(88)) // 120
	s2 := l.Add(payload(4))
	h3 := l.Add(payload(48)) // 80
	s3 := l.Add(payload(4))
	for _, b := range []*RequestBuffer{h1, s1, h2, s2, h3, s3} {
		require.NotNil(t, b)
	}
	require.Equal(t, 52, h1.size)
	require.Equal(t, 120, h2.size)
	require.Equal(t, 80, h3.size)

	h3off := h3.off
	require.NoError(t, l.Remove(h1))
	require.NoError(t, l.Remove(h2))
	require.NoError(t, l.Remove(h3))
	require.NoError(t, l.check())
	assert.Equal(t, 4, l.Stats().FreeBlocks)

	got := l.Add(payload(28))
	require.NotNil(t, got)
	require.Equal(t, 60, blockFor(28))
	assert.GreaterOrEqual(t, got.off, h3off)
	assert.LessOrEqual(t, got.off+got.size, h3off+80)
	// tail split: the remainder stays at the low end of the hole
	assert.Equal(t, h3off+20, got.off)
	require.NoError(t, l.check())
}

func TestRequestListExactFit(t *testing.T) {
	l, err := NewRequestList(poolHeaderSize + 400)
	require.NoError(t, err)
	a := l.Add(payload(100))
	b := l.Add(payload(8))
	require.NotNil(t, a)
	require.NotNil(t, b)
	blocks := l.Stats().FreeBlocks

	require.NoError(t, l.Remove(a))
	assert.Equal(t, blocks+1, l.Stats().FreeBlocks)

	c := l.Add(payload(100))
	require.NotNil(t, c)
	assert.Equal(t, blocks, l.Stats().FreeBlocks)
	require.NoError(t, l.check())
}

func TestRequestListExhaustion(t *testing.T) {
	l, err := NewRequestList(poolHeaderSize + 3*blockFor(64))
	require.NoError(t, err)

	var bufs []*RequestBuffer
	for range 3 {
		b := l.Add(payload(64))
		require.NotNil(t, b)
		bufs = append(bufs, b)
	}
	assert.Nil(t, l.Add(payload(1)))
	assert.Equal(t, 0, l.Stats().FreeBytes)

	require.NoError(t, l.Remove(bufs[1]))
	assert.Nil(t, l.Add(payload(65)))
	assert.NotNil(t, l.Add(payload(64)))
}

// TestRequestListCoalesce frees the middle buffer of three last, after its
// neighbours, and in the other orders, checking the free list never holds
// touching blocks.
func TestRequestListCoalesce(t *testing.T) {
	orders := map[string][]int{
		"pred_then_succ": {0, 2, 1},
		"succ_then_pred": {2, 0, 1},
		"middle_first":   {1, 0, 2},
		"middle_last":    {0, 1, 2},
		"reverse":        {2, 1, 0},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			const capacity = poolHeaderSize + 3*64
			l, err := NewRequestList(capacity)
			require.NoError(t, err)
			bufs := []*RequestBuffer{l.Add(payload(32)), l.Add(payload(32)), l.Add(payload(32))}
			for _, b := range bufs {
				require.NotNil(t, b)
			}
			for _, i := range order {
				require.NoError(t, l.Remove(bufs[i]))
				require.NoError(t, l.check())
			}
			s := l.Stats()
			assert.Equal(t, 1, s.FreeBlocks)
			assert.Equal(t, capacity-poolHeaderSize, s.LargestFree)
		})
	}
}

func TestRequestListConcurrent(t *testing.T) {
	l, err := NewRequestList(64 << 10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				b := l.Add(payload(1 + (g*31+i)%300))
				if b == nil {
					continue
				}
				if err := l.Remove(b); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, l.check())
	s := l.Stats()
	assert.Equal(t, 0, s.Buffers)
	assert.Equal(t, 1, s.FreeBlocks)
}

func BenchmarkRequestListAddRemove(b *testing.B) {
	l, err := NewRequestList(DefaultRequestListCapacity)
	if err != nil {
		b.Fatal(err)
	}
	msg := payload(484)
	b.ReportAllocs()
	for b.Loop() {
		buf := l.Add(msg)
		_ = l.Remove(buf)
	}
}
