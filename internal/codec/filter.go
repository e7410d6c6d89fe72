package codec

import (
	"encoding/binary"
	"fmt"
)

// decodeDelta reverses the Delta filter: each byte was stored as the
// difference from the byte distance positions earlier.
func decodeDelta(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	if len(req.Properties) != 1 {
		return nil, fmt.Errorf("delta properties are %d bytes, want 1: %w", len(req.Properties), ErrProperties)
	}
	in := req.Inputs[0]
	if len(in) < size {
		return nil, fmt.Errorf("delta input %d bytes, want %d: %w", len(in), size, ErrData)
	}
	dist := int(req.Properties[0]) + 1
	out := make([]byte, size)
	copy(out, in)
	for i := dist; i < size; i++ {
		out[i] += out[i-dist]
	}
	return [][]byte{out}, nil
}

var (
	x86MaskAllowed   = [8]bool{true, true, true, false, true, false, false, false}
	x86MaskBitNumber = [8]uint32{0, 1, 2, 2, 3, 3, 3, 3}
)

func x86MSByte(b byte) bool { return b == 0 || b == 0xFF }

// decodeBCJ converts x86 CALL/JMP absolute targets back to relative ones.
// The optional four byte property is the start offset.
func decodeBCJ(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	in := req.Inputs[0]
	if len(in) < size {
		return nil, fmt.Errorf("bcj input %d bytes, want %d: %w", len(in), size, ErrData)
	}
	var ip uint32
	switch len(req.Properties) {
	case 0:
	case 4:
		ip = binary.LittleEndian.Uint32(req.Properties)
	default:
		return nil, fmt.Errorf("bcj properties are %d bytes: %w", len(req.Properties), ErrProperties)
	}
	out := make([]byte, size)
	copy(out, in)
	x86Convert(out, ip)
	return [][]byte{out}, nil
}

// x86Convert is the decoding direction of the x86 branch converter, run over
// a whole buffer in one pass.
func x86Convert(data []byte, ip uint32) {
	if len(data) < 5 {
		return
	}
	ip += 5
	var prevMask uint32
	pos := 0
	prevPos := -1
	limit := len(data) - 4
	for {
		for pos < limit && data[pos]&0xFE != 0xE8 {
			pos++
		}
		if pos >= limit {
			return
		}

		if d := pos - prevPos; d > 3 {
			prevMask = 0
		} else {
			prevMask = (prevMask << uint(d-1)) & 7
			if prevMask != 0 {
				b := data[pos+4-int(x86MaskBitNumber[prevMask])]
				if !x86MaskAllowed[prevMask] || x86MSByte(b) {
					prevPos = pos
					prevMask = ((prevMask << 1) & 7) | 1
					pos++
					continue
				}
			}
		}
		prevPos = pos

		if !x86MSByte(data[pos+4]) {
			prevMask = ((prevMask << 1) & 7) | 1
			pos++
			continue
		}

		src := binary.LittleEndian.Uint32(data[pos+1:])
		var dest uint32
		for {
			dest = src - (ip + uint32(pos))
			if prevMask == 0 {
				break
			}
			idx := x86MaskBitNumber[prevMask] * 8
			if !x86MSByte(byte(dest >> (24 - idx))) {
				break
			}
			src = dest ^ (1<<(32-idx) - 1)
		}
		dest &= 0x01FFFFFF
		if dest&0x01000000 != 0 {
			dest |= 0xFF000000
		}
		binary.LittleEndian.PutUint32(data[pos+1:], dest)
		pos += 5
	}
}
