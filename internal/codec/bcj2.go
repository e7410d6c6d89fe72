package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	bcj2NumTopBits   = 24
	bcj2TopValue     = 1 << bcj2NumTopBits
	bcj2NumModelBits = 11
	bcj2BitModelMax  = 1 << bcj2NumModelBits
	bcj2NumMoveBits  = 5
)

// bcj2RangeDecoder is the binary range decoder that selects which E8/E9/Jcc
// opcodes were converted.
type bcj2RangeDecoder struct {
	buf   []byte
	pos   int
	rng   uint32
	code  uint32
	probs [256 + 2]uint16
}

func newBCJ2RangeDecoder(buf []byte) (*bcj2RangeDecoder, error) {
	if len(buf) < 5 {
		return nil, fmt.Errorf("bcj2 range stream is %d bytes: %w", len(buf), ErrData)
	}
	d := &bcj2RangeDecoder{buf: buf, rng: 0xFFFFFFFF}
	for i := range 5 {
		d.code = d.code<<8 | uint32(buf[i])
	}
	d.pos = 5
	for i := range d.probs {
		d.probs[i] = bcj2BitModelMax >> 1
	}
	return d, nil
}

func (d *bcj2RangeDecoder) decodeBit(prob int) (bool, error) {
	p := uint32(d.probs[prob])
	bound := (d.rng >> bcj2NumModelBits) * p
	var bit bool
	if d.code < bound {
		d.rng = bound
		d.probs[prob] = uint16(p + (bcj2BitModelMax-p)>>bcj2NumMoveBits)
	} else {
		d.rng -= bound
		d.code -= bound
		d.probs[prob] = uint16(p - p>>bcj2NumMoveBits)
		bit = true
	}
	if d.rng < bcj2TopValue {
		if d.pos >= len(d.buf) {
			return false, fmt.Errorf("bcj2 range stream exhausted: %w", ErrData)
		}
		d.rng <<= 8
		d.code = d.code<<8 | uint32(d.buf[d.pos])
		d.pos++
	}
	return bit, nil
}

func bcj2IsJump(b0, b1 byte) bool {
	return b1&0xFE == 0xE8 || (b0 == 0x0F && b1&0xF0 == 0x80)
}

// decodeBCJ2 merges the four BCJ2 streams: main code, CALL targets, JMP
// targets and the range-coded selector stream.
func decodeBCJ2(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	main, calls, jumps := req.Inputs[0], req.Inputs[1], req.Inputs[2]
	rc, err := newBCJ2RangeDecoder(req.Inputs[3])
	if err != nil {
		return nil, err
	}

	// Every output byte comes from one of the three data streams.
	out := make([]byte, 0, min(size, len(main)+len(calls)+len(jumps)))
	var prev byte
	pos := 0
	for len(out) < size && pos < len(main) {
		b := main[pos]
		pos++
		out = append(out, b)
		if !bcj2IsJump(prev, b) {
			prev = b
			continue
		}
		if len(out) == size {
			break
		}

		prob := 257
		switch b {
		case 0xE8:
			prob = int(prev)
		case 0xE9:
			prob = 256
		}
		converted, err := rc.decodeBit(prob)
		if err != nil {
			return nil, err
		}
		if !converted {
			prev = b
			continue
		}

		src := &jumps
		if b == 0xE8 {
			src = &calls
		}
		if len(*src) < 4 {
			return nil, fmt.Errorf("bcj2 target stream exhausted: %w", ErrData)
		}
		v := *src
		*src = v[4:]
		dest := binary.BigEndian.Uint32(v) - uint32(len(out)+4)
		for i := 0; i < 4 && len(out) < size; i++ {
			out = append(out, byte(dest>>(8*uint(i))))
		}
		prev = byte(dest >> 24)
	}
	if len(out) != size {
		return nil, fmt.Errorf("bcj2 produced %d bytes, want %d: %w", len(out), size, ErrData)
	}
	return [][]byte{out}, nil
}
