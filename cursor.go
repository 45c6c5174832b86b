// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/unitybundle

package unitybundle

import (
	"bytes"
	"encoding/binary"
	"io"
)

// cursor is a bounds-checked big-endian reader over one in-memory buffer.
// All container fields are big-endian on the wire.
type cursor struct {
	buf []byte
	off int
}

// remaining returns unread byte count.
func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

// pos returns the absolute read position.
func (c *cursor) pos() int {
	return c.off
}

// take consumes exactly n bytes and returns them without copying.
func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, io.ErrUnexpectedEOF
	}

	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, nil
}

// skip advances the cursor by n bytes.
func (c *cursor) skip(n int) error {
	_, err := c.take(n)
	return err
}

// align advances the cursor to the next multiple of boundary.
func (c *cursor) align(boundary int) error {
	if boundary <= 1 {
		return nil
	}

	rem := c.off % boundary
	if rem == 0 {
		return nil
	}

	return c.skip(boundary - rem)
}

// u16 reads a big-endian uint16.
func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(b), nil
}

// u32 reads a big-endian uint32.
func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b), nil
}

// u64 reads a big-endian uint64.
func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint64(b), nil
}

// i32 reads a big-endian int32.
func (c *cursor) i32() (int32, error) {
	v, err := c.u32()
	return int32(v), err
}

// i64 reads a big-endian int64.
func (c *cursor) i64() (int64, error) {
	v, err := c.u64()
	return int64(v), err
}

// stringZ reads a NUL-terminated string and consumes the terminator.
func (c *cursor) stringZ() (string, error) {
	idx := bytes.IndexByte(c.buf[c.off:], 0)
	if idx < 0 {
		return "", io.ErrUnexpectedEOF
	}

	out := string(c.buf[c.off : c.off+idx])
	c.off += idx + 1
	return out, nil
}
