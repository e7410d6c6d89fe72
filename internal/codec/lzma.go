package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// decodeLZMA decodes a raw LZMA stream. 7z stores the five property bytes
// (lc/lp/pb byte and dictionary size) in the coder properties and omits the
// classic .lzma header, so we rebuild that header with the known output size.
func decodeLZMA(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	props := req.Properties
	if len(props) != 5 {
		return nil, fmt.Errorf("lzma properties are %d bytes, want 5: %w", len(props), ErrProperties)
	}

	header := make([]byte, 13)
	header[0] = props[0]
	dictCap := binary.LittleEndian.Uint32(props[1:])
	binary.LittleEndian.PutUint32(header[1:5], clampDict(uint64(dictCap), size))
	binary.LittleEndian.PutUint64(header[5:], uint64(size))

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), bytes.NewReader(req.Inputs[0])))
	if err != nil {
		return nil, fmt.Errorf("lzma reader: %v: %w", err, ErrData)
	}
	out, err := readExactly(r, size)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

// decodeLZMA2 decodes an LZMA2 chunk stream. The single property byte
// encodes the dictionary size.
func decodeLZMA2(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	if len(req.Properties) != 1 {
		return nil, fmt.Errorf("lzma2 properties are %d bytes, want 1: %w", len(req.Properties), ErrProperties)
	}
	dictCap, err := lzma2DictSize(req.Properties[0])
	if err != nil {
		return nil, err
	}

	cfg := lzma.Reader2Config{DictCap: int(clampDict(dictCap, size))}
	r, err := cfg.NewReader2(bytes.NewReader(req.Inputs[0]))
	if err != nil {
		return nil, fmt.Errorf("lzma2 reader: %v: %w", err, ErrData)
	}
	out, err := readExactly(r, size)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

func lzma2DictSize(p byte) (uint64, error) {
	switch {
	case p > 40:
		return 0, fmt.Errorf("lzma2 dictionary property %d: %w", p, ErrProperties)
	case p == 40:
		return 0xFFFFFFFF, nil
	}
	return uint64(2|p&1) << (p/2 + 11), nil
}

// clampDict limits the dictionary allocation to the output size. Match
// distances can never reach past the start of the output, so a larger
// dictionary only costs memory.
func clampDict(dictCap uint64, size int) uint32 {
	limit := uint64(size)
	if limit < lzma.MinDictCap {
		limit = lzma.MinDictCap
	}
	if dictCap > limit {
		dictCap = limit
	}
	if dictCap < lzma.MinDictCap {
		dictCap = lzma.MinDictCap
	}
	if dictCap > 0xFFFFFFFF {
		dictCap = 0xFFFFFFFF
	}
	return uint32(dictCap)
}

// readExactly reads size bytes and stops, ignoring anything the stream has
// after that (some encoders append an end marker). The buffer grows with the
// decoded data, so a bogus declared size fails once the stream runs dry
// instead of being allocated up front.
func readExactly(r io.Reader, size int) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if len(out) == size {
		return out, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read %d of %d bytes: %v: %w", len(out), size, err, ErrData)
}
