package codec

import (
	"bytes"
	"compress/bzip2"
	"fmt"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func decodeDeflate(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	r := flate.NewReader(bytes.NewReader(req.Inputs[0]))
	defer r.Close()
	out, err := readExactly(r, size)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

func decodeBZip2(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	out, err := readExactly(bzip2.NewReader(bytes.NewReader(req.Inputs[0])), size)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

func decodeZstd(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(bytes.NewReader(req.Inputs[0]),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := readExactly(dec, size)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}

// decodeLZ4 reads LZ4 frame data. The coder properties (format version and
// level) do not affect decoding.
func decodeLZ4(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	out, err := readExactly(lz4.NewReader(bytes.NewReader(req.Inputs[0])), size)
	if err != nil {
		return nil, err
	}
	return [][]byte{out}, nil
}
