package sevenzip

import (
	"time"

	"github.com/bamsammich/seven/internal/codec"
)

// Coder is one stage of a folder.
type Coder struct {
	Method        codec.Method
	NumInStreams  int
	NumOutStreams int
	Properties    []byte
}

// BindPair feeds output stream OutIndex into input stream InIndex. Both are
// folder-wide stream indices.
type BindPair struct {
	InIndex  int
	OutIndex int
}

// Folder is a compression unit: a small DAG of coders whose unbound inputs
// read packed streams and whose single unbound output is the decoded data.
type Folder struct {
	Coders    []Coder
	BindPairs []BindPair

	// PackedStreams lists the folder input stream indices fed from packed
	// data, in pack stream order.
	PackedStreams []int

	// UnpackSizes has one entry per coder output stream.
	UnpackSizes []uint64

	CRC    uint32
	HasCRC bool

	// firstPackStream is the index of this folder's first pack stream in
	// PackInfo.Sizes.
	firstPackStream int
}

// NumInStreams is the total number of coder input streams.
func (f *Folder) NumInStreams() int {
	n := 0
	for _, c := range f.Coders {
		n += c.NumInStreams
	}
	return n
}

// NumOutStreams is the total number of coder output streams.
func (f *Folder) NumOutStreams() int {
	n := 0
	for _, c := range f.Coders {
		n += c.NumOutStreams
	}
	return n
}

// UnpackSize is the declared size of the folder's final output.
func (f *Folder) UnpackSize() uint64 {
	out, err := f.MainOutput()
	if err != nil || out >= len(f.UnpackSizes) {
		return 0
	}
	return f.UnpackSizes[out]
}

// Encrypted reports whether any coder in the folder is an encryption stage.
func (f *Folder) Encrypted() bool {
	for _, c := range f.Coders {
		if c.Method.IsEncryption() {
			return true
		}
	}
	return false
}

// PackInfo locates the packed streams, relative to the end of the
// signature header.
type PackInfo struct {
	PackPos    uint64
	Sizes      []uint64
	CRCs       []uint32
	CRCDefined []bool
}

// SubStreamsInfo splits folder outputs into files. Sizes, CRCs and
// CRCDefined are flattened across folders in folder order.
type SubStreamsInfo struct {
	NumUnpackStreams []int
	Sizes            []uint64
	CRCs             []uint32
	CRCDefined       []bool
}

// StreamsInfo is the parsed kMainStreamsInfo (or the streams describing an
// encoded header).
type StreamsInfo struct {
	Pack       PackInfo
	Folders    []Folder
	SubStreams SubStreamsInfo
}

// Entry is one record of FilesInfo plus its resolved stream location.
type Entry struct {
	Name          string
	Attributes    uint32
	HasAttributes bool

	Created  time.Time
	Accessed time.Time
	Modified time.Time

	// HasStream is false for directories and empty files.
	HasStream   bool
	IsEmptyFile bool
	IsAnti      bool
	IsDir       bool

	Size   uint64
	CRC    uint32
	HasCRC bool

	// Folder is -1 when the entry has no stream.
	Folder    int
	Substream int
	Offset    uint64
}

// Windows attribute bits, plus the p7zip extension that stores a Unix mode
// in the high 16 bits.
const (
	AttrReadOnly      = 0x01
	AttrHidden        = 0x02
	AttrSystem        = 0x04
	AttrDirectory     = 0x10
	AttrArchive       = 0x20
	AttrUnixExtension = 0x8000
)

// UnixMode returns the Unix permission and type bits stored by p7zip, if any.
func (e *Entry) UnixMode() (uint32, bool) {
	if !e.HasAttributes || e.Attributes&AttrUnixExtension == 0 {
		return 0, false
	}
	return e.Attributes >> 16, true
}

// Header is the decoded archive database.
type Header struct {
	Streams *StreamsInfo
	Entries []Entry
}
