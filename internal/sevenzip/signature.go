package sevenzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// SignatureHeaderSize is the fixed size of the header at offset 0.
const SignatureHeaderSize = 32

// Magic is the 6-byte signature every 7z archive starts with.
var Magic = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// MajorVersion is the only major format version this reader accepts.
const MajorVersion = 0

// SignatureHeader is the fixed header at the start of the archive. It points
// at the header database stored at the end of the file.
type SignatureHeader struct {
	Major          byte
	Minor          byte
	StartHeaderCRC uint32

	NextHeaderOffset uint64
	NextHeaderSize   uint64
	NextHeaderCRC    uint32
}

// ReadSignatureHeader reads and validates the signature header at offset 0.
func ReadSignatureHeader(r io.ReaderAt) (SignatureHeader, error) {
	buf := make([]byte, SignatureHeaderSize)
	if err := readFullAt(r, buf, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return SignatureHeader{}, fmt.Errorf("signature header: %w", ErrFormat)
		}
		return SignatureHeader{}, fmt.Errorf("read signature header: %w", err)
	}
	return parseSignatureHeader(buf)
}

// readFullAt fills buf from off. A full read that also reports io.EOF, as
// io.ReaderAt allows at the end of the input, is a success.
func readFullAt(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) && (err == nil || errors.Is(err, io.EOF)) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func parseSignatureHeader(buf []byte) (SignatureHeader, error) {
	if len(buf) < SignatureHeaderSize || !bytes.Equal(buf[:6], Magic) {
		return SignatureHeader{}, fmt.Errorf("bad magic: %w", ErrFormat)
	}
	h := SignatureHeader{
		Major:            buf[6],
		Minor:            buf[7],
		StartHeaderCRC:   binary.LittleEndian.Uint32(buf[8:]),
		NextHeaderOffset: binary.LittleEndian.Uint64(buf[12:]),
		NextHeaderSize:   binary.LittleEndian.Uint64(buf[20:]),
		NextHeaderCRC:    binary.LittleEndian.Uint32(buf[28:]),
	}
	if h.Major != MajorVersion {
		return SignatureHeader{}, fmt.Errorf("unsupported version %d.%d: %w", h.Major, h.Minor, ErrFormat)
	}
	if got := crc32.ChecksumIEEE(buf[12:32]); got != h.StartHeaderCRC {
		return SignatureHeader{}, fmt.Errorf("start header crc %08x, want %08x: %w",
			got, h.StartHeaderCRC, ErrFormat)
	}
	return h, nil
}
