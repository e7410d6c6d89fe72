package sevenzip

import (
	"encoding/binary"
	"fmt"
)

// cursor is a forward-only reader over an in-memory header buffer. All reads
// fail with ErrTruncated instead of panicking when the buffer runs out.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, fmt.Errorf("read byte at offset %d: %w", c.pos, ErrTruncated)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readBytes(n uint64) ([]byte, error) {
	if n > uint64(c.remaining()) {
		return nil, fmt.Errorf("read %d bytes at offset %d: %w", n, c.pos, ErrTruncated)
	}
	b := c.buf[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

func (c *cursor) skip(n uint64) error {
	_, err := c.readBytes(n)
	return err
}

func (c *cursor) readUint32() (uint32, error) {
	b, err := c.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readUint64() (uint64, error) {
	b, err := c.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// readNumber decodes the 7z variable-length integer. The count of leading
// one bits in the first byte is the number of little-endian bytes that follow;
// the bits below the terminating zero are the most significant part of the
// value. A first byte of 0xFF is followed by a full 8-byte value.
func (c *cursor) readNumber() (uint64, error) {
	first, err := c.readByte()
	if err != nil {
		return 0, err
	}
	var value uint64
	mask := byte(0x80)
	for i := range 8 {
		if first&mask == 0 {
			high := uint64(first & (mask - 1))
			return value | high<<(8*uint(i)), nil
		}
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b) << (8 * uint(i))
		mask >>= 1
	}
	return value, nil
}

// readInt reads a number that is used as a count or index and must fit
// comfortably in an int. limit bounds it against hostile headers.
func (c *cursor) readInt(limit int) (int, error) {
	n, err := c.readNumber()
	if err != nil {
		return 0, err
	}
	if n > uint64(limit) {
		return 0, fmt.Errorf("value %d exceeds limit %d: %w", n, limit, ErrMalformedHeader)
	}
	return int(n), nil
}

// readBitVector reads ceil(n/8) bytes and expands them most-significant bit
// first.
func (c *cursor) readBitVector(n int) ([]bool, error) {
	b, err := c.readBytes(uint64((n + 7) / 8))
	if err != nil {
		return nil, err
	}
	bits := make([]bool, n)
	for i := range n {
		bits[i] = b[i/8]&(0x80>>(uint(i)%8)) != 0
	}
	return bits, nil
}

// readAllOrBits reads the "all defined" flag byte. When it is nonzero every
// bit is set and no vector follows.
func (c *cursor) readAllOrBits(n int) ([]bool, error) {
	all, err := c.readByte()
	if err != nil {
		return nil, err
	}
	if all == 0 {
		return c.readBitVector(n)
	}
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = true
	}
	return bits, nil
}

// readDigests reads an all-or-bits vector followed by one little-endian CRC
// per defined entry.
func (c *cursor) readDigests(n int) ([]bool, []uint32, error) {
	defined, err := c.readAllOrBits(n)
	if err != nil {
		return nil, nil, err
	}
	crcs := make([]uint32, n)
	for i, ok := range defined {
		if !ok {
			continue
		}
		if crcs[i], err = c.readUint32(); err != nil {
			return nil, nil, err
		}
	}
	return defined, crcs, nil
}
