// Object pools for reducing GC pressure in hot paths
//
// Provides reusable object pools for the residue map exporter, reader and
// the service layer:
// - Byte buffers (one formatted node line at a time)
// - Float slices (node records and finite-difference stencils)
// - String slices (whitespace-split fields of a parsed line)
// - Result maps (JSON-RPC results)
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//	buf.AppendFloat(v, 'E', 9)
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"strconv"
	"sync"
)

// Float64Slice pool - sized for node records (4) and stencils (9)
type float64SlicePool struct {
	pools [2]sync.Pool
}

var floatSlicePool = &float64SlicePool{}

// Pooled float slice sizes.
const (
	NodeSize    = 4
	StencilSize = 9
)

func init() {
	for i, size := range []int{NodeSize, StencilSize} {
		s := size // capture for closure
		floatSlicePool.pools[i].New = func() any {
			return make([]float64, s)
		}
	}
}

// poolIndex returns the pool index for a given size, or -1 if no pool
func poolIndex(size int) int {
	switch size {
	case NodeSize:
		return 0
	case StencilSize:
		return 1
	default:
		return -1
	}
}

// GetFloat64Slice gets a zeroed float64 slice from the pool.
// If the requested size doesn't match a pool, allocates a new slice
func GetFloat64Slice(size int) []float64 {
	idx := poolIndex(size)
	if idx >= 0 {
		s := floatSlicePool.pools[idx].Get().([]float64)
		clear(s)
		return s
	}
	return make([]float64, size)
}

// PutFloat64Slice returns a float64 slice to the pool
func PutFloat64Slice(s []float64) {
	if s == nil {
		return
	}
	idx := poolIndex(len(s))
	if idx >= 0 {
		floatSlicePool.pools[idx].Put(s)
	}
	// Non-pooled sizes are just discarded
}

// ByteBuffer pool - for formatting output lines
type ByteBuffer struct {
	buf []byte
}

// maxPooledBuffer keeps a stray oversized line from pinning memory.
const maxPooledBuffer = 4096

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{
			buf: make([]byte, 0, 128), // one residue map line
		}
	},
}

// GetByteBuffer gets a byte buffer from the pool
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0] // Reset length but keep capacity
	return b
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil {
		return
	}
	if cap(b.buf) > maxPooledBuffer {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer's byte slice
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Write appends bytes to the buffer
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends a string
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

// AppendFloat appends v formatted as by strconv.FormatFloat. With fmt 'E'
// the output matches the "%.<prec>E" verb.
func (b *ByteBuffer) AppendFloat(v float64, fmt byte, prec int) {
	b.buf = strconv.AppendFloat(b.buf, v, fmt, prec, 64)
}

// AppendInt appends a base-10 integer.
func (b *ByteBuffer) AppendInt(v int) {
	b.buf = strconv.AppendInt(b.buf, int64(v), 10)
}

// Len returns the buffer length
func (b *ByteBuffer) Len() int {
	return len(b.buf)
}

// Cap returns the buffer capacity
func (b *ByteBuffer) Cap() int {
	return cap(b.buf)
}

// Reset clears the buffer
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}

// Grow ensures the buffer has capacity for n more bytes
func (b *ByteBuffer) Grow(n int) {
	if cap(b.buf)-len(b.buf) < n {
		newCap := cap(b.buf)*2 + n
		newBuf := make([]byte, len(b.buf), newCap)
		copy(newBuf, b.buf)
		b.buf = newBuf
	}
}

// StringSlice pool - for whitespace-split fields
var stringSlicePool = sync.Pool{
	New: func() any {
		s := make([]string, 0, 8)
		return &s
	},
}

// GetStringSlice gets a string slice from the pool
func GetStringSlice() *[]string {
	s := stringSlicePool.Get().(*[]string)
	*s = (*s)[:0]
	return s
}

// PutStringSlice returns a string slice to the pool
func PutStringSlice(s *[]string) {
	if s == nil || cap(*s) > 256 {
		return
	}
	// Clear to allow GC of string contents
	for i := range *s {
		(*s)[i] = ""
	}
	*s = (*s)[:0]
	stringSlicePool.Put(s)
}

// ResultMap pool - for JSON-RPC result objects
var resultMapPool = sync.Pool{
	New: func() any {
		return make(map[string]any, 16)
	},
}

// GetResultMap gets a result map from the pool
func GetResultMap() map[string]any {
	return resultMapPool.Get().(map[string]any)
}

// PutResultMap returns a result map to the pool. The map must not be used
// after it has been encoded and returned.
func PutResultMap(m map[string]any) {
	if m == nil {
		return
	}
	clear(m)
	resultMapPool.Put(m)
}
