package sevenzip

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
	"golang.org/x/text/encoding/unicode"

	"github.com/bamsammich/seven/internal/codec"
)

// This file builds 7z archives in memory for tests. It writes the same
// structures the parser reads, which keeps fixtures small and readable.

type testEntry struct {
	name    string
	data    []byte
	dir     bool
	anti    bool
	mtime   time.Time
	attr    uint32
	hasAttr bool
}

func (e testEntry) hasStream() bool {
	return !e.dir && !e.anti && len(e.data) > 0
}

// testFolder is a folder plus its packed streams.
type testFolder struct {
	folder Folder
	packed [][]byte
}

// packer turns a folder payload into a folder.
type packer func(t testing.TB, payload []byte) testFolder

func copyPacker(_ testing.TB, payload []byte) testFolder {
	return testFolder{
		folder: Folder{
			Coders:        []Coder{{Method: codec.Copy, NumInStreams: 1, NumOutStreams: 1}},
			PackedStreams: []int{0},
			UnpackSizes:   []uint64{uint64(len(payload))},
		},
		packed: [][]byte{payload},
	}
}

func lzmaPacker(t testing.TB, payload []byte) testFolder {
	t.Helper()
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		DictCap:      1 << 20,
		SizeInHeader: true,
		Size:         int64(len(payload)),
	}
	w, err := cfg.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	stream := buf.Bytes()
	return testFolder{
		folder: Folder{
			Coders: []Coder{{
				Method:        codec.LZMA,
				NumInStreams:  1,
				NumOutStreams: 1,
				Properties:    bytes.Clone(stream[:5]),
			}},
			PackedStreams: []int{0},
			UnpackSizes:   []uint64{uint64(len(payload))},
		},
		packed: [][]byte{stream[13:]},
	}
}

func lzma2Packer(t testing.TB, payload []byte) testFolder {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.Writer2Config{DictCap: 1 << 20}.NewWriter2(&buf)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return testFolder{
		folder: Folder{
			Coders: []Coder{{
				Method:        codec.LZMA2,
				NumInStreams:  1,
				NumOutStreams: 1,
				Properties:    []byte{16}, // 1 MiB dictionary
			}},
			PackedStreams: []int{0},
			UnpackSizes:   []uint64{uint64(len(payload))},
		},
		packed: [][]byte{buf.Bytes()},
	}
}

const testAESCycles = 6

// aesPacker encrypts the output of inner the way 7-Zip chains 7zAES: the
// compressor is coder 0 and reads the output of the AES coder.
func aesPacker(password string, inner packer) packer {
	return func(t testing.TB, payload []byte) testFolder {
		t.Helper()
		tf := inner(t, payload)
		require.Len(t, tf.folder.Coders, 1)
		plain := tf.packed[0]

		iv := bytes.Repeat([]byte{0xA5}, aes.BlockSize)
		key, err := codec.DeriveAESKey(password, nil, testAESCycles)
		require.NoError(t, err)
		block, err := aes.NewCipher(key)
		require.NoError(t, err)
		padded := make([]byte, (len(plain)+aes.BlockSize-1)/aes.BlockSize*aes.BlockSize)
		copy(padded, plain)
		encrypted := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

		props := append([]byte{0x40 | testAESCycles, 0x0F}, iv...)
		f := tf.folder
		f.Coders = append(f.Coders, Coder{Method: codec.AES, NumInStreams: 1, NumOutStreams: 1, Properties: props})
		f.BindPairs = []BindPair{{InIndex: 0, OutIndex: 1}}
		f.PackedStreams = []int{1}
		f.UnpackSizes = append(f.UnpackSizes, uint64(len(plain)))
		return testFolder{folder: f, packed: [][]byte{encrypted}}
	}
}

type archiveBuilder struct {
	entries []testEntry
	pack    packer

	// solid puts every stream into one folder.
	solid bool
	// folderCRCOnly records a folder CRC for multi-file folders instead of
	// per-file CRCs.
	folderCRCOnly bool
	// noCRC records no digests at all.
	noCRC bool

	// encodeHeader stores the header compressed with headerPack.
	encodeHeader bool
	headerPack   packer

	// Forward-compatibility noise.
	archiveProperties bool
	unknownFileProp   bool
}

func newBuilder(pack packer, entries ...testEntry) *archiveBuilder {
	return &archiveBuilder{entries: entries, pack: pack}
}

// build returns the archive bytes.
func (b *archiveBuilder) build(t testing.TB) []byte {
	t.Helper()

	var groups [][]int
	for i, e := range b.entries {
		if !e.hasStream() {
			continue
		}
		if b.solid && len(groups) > 0 {
			groups[0] = append(groups[0], i)
			continue
		}
		groups = append(groups, []int{i})
	}

	var (
		data bytes.Buffer
		si   StreamsInfo
	)
	for _, g := range groups {
		var payload []byte
		for _, i := range g {
			payload = append(payload, b.entries[i].data...)
		}
		tf := b.pack(t, payload)
		f := tf.folder
		if !b.noCRC && (len(g) == 1 || b.folderCRCOnly) {
			f.HasCRC = true
			f.CRC = crc32.ChecksumIEEE(payload)
		}
		si.Folders = append(si.Folders, f)
		si.SubStreams.NumUnpackStreams = append(si.SubStreams.NumUnpackStreams, len(g))
		for _, i := range g {
			content := b.entries[i].data
			si.SubStreams.Sizes = append(si.SubStreams.Sizes, uint64(len(content)))
			si.SubStreams.CRCs = append(si.SubStreams.CRCs, crc32.ChecksumIEEE(content))
			si.SubStreams.CRCDefined = append(si.SubStreams.CRCDefined, !b.noCRC && !b.folderCRCOnly)
		}
		for _, p := range tf.packed {
			si.Pack.Sizes = append(si.Pack.Sizes, uint64(len(p)))
			data.Write(p)
		}
	}

	var hw headerWriter
	hw.id(idHeader)
	if b.archiveProperties {
		hw.id(idArchiveProperties)
		hw.id(0x40)
		hw.number(3)
		hw.Write([]byte{1, 2, 3})
		hw.id(idEnd)
	}
	if len(si.Folders) > 0 {
		hw.id(idMainStreamsInfo)
		hw.streamsInfo(&si)
	}
	if len(b.entries) > 0 {
		hw.id(idFilesInfo)
		hw.filesInfo(b.entries, b.unknownFileProp)
	}
	hw.id(idEnd)
	header := hw.Bytes()

	if b.encodeHeader {
		tf := b.headerPack(t, header)
		tf.folder.HasCRC = true
		tf.folder.CRC = crc32.ChecksumIEEE(header)
		enc := StreamsInfo{
			Pack:    PackInfo{PackPos: uint64(data.Len())},
			Folders: []Folder{tf.folder},
		}
		for _, p := range tf.packed {
			enc.Pack.Sizes = append(enc.Pack.Sizes, uint64(len(p)))
			data.Write(p)
		}
		var ew headerWriter
		ew.id(idEncodedHeader)
		ew.streamsInfo(&enc)
		header = ew.Bytes()
	}

	return assemble(data.Bytes(), header)
}

// assemble prepends a signature header pointing at header, which follows
// the packed data.
func assemble(packed, header []byte) []byte {
	sig := make([]byte, SignatureHeaderSize)
	copy(sig, Magic)
	sig[6], sig[7] = MajorVersion, 4
	binary.LittleEndian.PutUint64(sig[12:], uint64(len(packed)))
	binary.LittleEndian.PutUint64(sig[20:], uint64(len(header)))
	binary.LittleEndian.PutUint32(sig[28:], crc32.ChecksumIEEE(header))
	binary.LittleEndian.PutUint32(sig[8:], crc32.ChecksumIEEE(sig[12:32]))

	out := append(sig, packed...)
	return append(out, header...)
}

// headerWriter writes header database structures.
type headerWriter struct {
	bytes.Buffer
}

func (w *headerWriter) id(id propertyID) {
	w.WriteByte(byte(id))
}

// number writes the 7z variable-length integer.
func (w *headerWriter) number(v uint64) {
	first := byte(0)
	mask := byte(0x80)
	i := 0
	for ; i < 8; i++ {
		if v < uint64(1)<<(7*uint(i+1)) {
			first |= byte(v >> (8 * uint(i)))
			break
		}
		first |= mask
		mask >>= 1
	}
	w.WriteByte(first)
	for ; i > 0; i-- {
		w.WriteByte(byte(v))
		v >>= 8
	}
}

func (w *headerWriter) uint32(v uint32) {
	w.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *headerWriter) uint64(v uint64) {
	w.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func (w *headerWriter) bits(v []bool) {
	var b, mask byte = 0, 0x80
	for _, set := range v {
		if set {
			b |= mask
		}
		mask >>= 1
		if mask == 0 {
			w.WriteByte(b)
			b, mask = 0, 0x80
		}
	}
	if mask != 0x80 {
		w.WriteByte(b)
	}
}

func (w *headerWriter) allOrBits(v []bool) {
	for _, set := range v {
		if !set {
			w.WriteByte(0)
			w.bits(v)
			return
		}
	}
	w.WriteByte(1)
}

func (w *headerWriter) digests(defined []bool, crcs []uint32) {
	w.allOrBits(defined)
	for i, ok := range defined {
		if ok {
			w.uint32(crcs[i])
		}
	}
}

func (w *headerWriter) streamsInfo(si *StreamsInfo) {
	w.id(idPackInfo)
	w.number(si.Pack.PackPos)
	w.number(uint64(len(si.Pack.Sizes)))
	w.id(idSize)
	for _, s := range si.Pack.Sizes {
		w.number(s)
	}
	w.id(idEnd)

	w.id(idUnpackInfo)
	w.id(idFolder)
	w.number(uint64(len(si.Folders)))
	w.WriteByte(0)
	for i := range si.Folders {
		w.folder(&si.Folders[i])
	}
	w.id(idCodersUnpackSize)
	for _, f := range si.Folders {
		for _, s := range f.UnpackSizes {
			w.number(s)
		}
	}
	var defined []bool
	var crcs []uint32
	anyCRC := false
	for _, f := range si.Folders {
		defined = append(defined, f.HasCRC)
		crcs = append(crcs, f.CRC)
		anyCRC = anyCRC || f.HasCRC
	}
	if anyCRC {
		w.id(idCRC)
		w.digests(defined, crcs)
	}
	w.id(idEnd)

	if si.SubStreams.NumUnpackStreams != nil {
		w.subStreamsInfo(si)
	}
	w.id(idEnd)
}

func (w *headerWriter) folder(f *Folder) {
	w.number(uint64(len(f.Coders)))
	for _, c := range f.Coders {
		id := c.Method.ID()
		flags := byte(len(id))
		isComplex := c.NumInStreams != 1 || c.NumOutStreams != 1
		if isComplex {
			flags |= coderIsComplex
		}
		if len(c.Properties) > 0 {
			flags |= coderHasProperties
		}
		w.WriteByte(flags)
		w.Write(id)
		if isComplex {
			w.number(uint64(c.NumInStreams))
			w.number(uint64(c.NumOutStreams))
		}
		if len(c.Properties) > 0 {
			w.number(uint64(len(c.Properties)))
			w.Write(c.Properties)
		}
	}
	for _, bp := range f.BindPairs {
		w.number(uint64(bp.InIndex))
		w.number(uint64(bp.OutIndex))
	}
	if len(f.PackedStreams) > 1 {
		for _, p := range f.PackedStreams {
			w.number(uint64(p))
		}
	}
}

func (w *headerWriter) subStreamsInfo(si *StreamsInfo) {
	ss := si.SubStreams
	w.id(idSubStreamsInfo)

	allOne := true
	for _, n := range ss.NumUnpackStreams {
		allOne = allOne && n == 1
	}
	if !allOne {
		w.id(idNumUnpackStream)
		for _, n := range ss.NumUnpackStreams {
			w.number(uint64(n))
		}
		w.id(idSize)
		flat := 0
		for _, n := range ss.NumUnpackStreams {
			for j := range n {
				if j < n-1 {
					w.number(ss.Sizes[flat])
				}
				flat++
			}
		}
	}

	var defined []bool
	var crcs []uint32
	anyCRC := false
	flat := 0
	for i, n := range ss.NumUnpackStreams {
		if n == 1 && si.Folders[i].HasCRC {
			flat++
			continue
		}
		for range n {
			defined = append(defined, ss.CRCDefined[flat])
			crcs = append(crcs, ss.CRCs[flat])
			anyCRC = anyCRC || ss.CRCDefined[flat]
			flat++
		}
	}
	if anyCRC {
		w.id(idCRC)
		w.digests(defined, crcs)
	}
	w.id(idEnd)
}

// property writes a FilesInfo property with its size prefix.
func (w *headerWriter) property(id propertyID, body []byte) {
	w.id(id)
	w.number(uint64(len(body)))
	w.Write(body)
}

func (w *headerWriter) filesInfo(entries []testEntry, unknownProp bool) {
	w.number(uint64(len(entries)))

	emptyStream := make([]bool, len(entries))
	var emptyFile, anti []bool
	anyEmpty, anyEmptyFile, anyAnti := false, false, false
	for i, e := range entries {
		if e.hasStream() {
			continue
		}
		emptyStream[i] = true
		anyEmpty = true
		isEmptyFile := !e.dir && !e.anti
		emptyFile = append(emptyFile, isEmptyFile)
		anti = append(anti, e.anti)
		anyEmptyFile = anyEmptyFile || isEmptyFile
		anyAnti = anyAnti || e.anti
	}
	if anyEmpty {
		var p headerWriter
		p.bits(emptyStream)
		w.property(idEmptyStream, p.Bytes())
	}
	if anyEmptyFile {
		var p headerWriter
		p.bits(emptyFile)
		w.property(idEmptyFile, p.Bytes())
	}
	if anyAnti {
		var p headerWriter
		p.bits(anti)
		w.property(idAnti, p.Bytes())
	}
	if unknownProp {
		w.property(0x30, []byte{0xDE, 0xAD, 0xBE})
		w.property(idDummy, make([]byte, 4))
	}

	var names headerWriter
	names.WriteByte(0)
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	for _, e := range entries {
		b, err := enc.Bytes([]byte(e.name))
		if err != nil {
			panic(err)
		}
		names.Write(b)
		names.Write([]byte{0, 0})
	}
	w.property(idName, names.Bytes())

	times := make([]bool, len(entries))
	anyTime := false
	for i, e := range entries {
		times[i] = !e.mtime.IsZero()
		anyTime = anyTime || times[i]
	}
	if anyTime {
		var p headerWriter
		p.allOrBits(times)
		p.WriteByte(0)
		for _, e := range entries {
			if !e.mtime.IsZero() {
				p.uint64(timeToFiletime(e.mtime))
			}
		}
		w.property(idMTime, p.Bytes())
	}

	attrs := make([]bool, len(entries))
	anyAttr := false
	for i, e := range entries {
		attrs[i] = e.hasAttr
		anyAttr = anyAttr || e.hasAttr
	}
	if anyAttr {
		var p headerWriter
		p.allOrBits(attrs)
		p.WriteByte(0)
		for _, e := range entries {
			if e.hasAttr {
				p.uint32(e.attr)
			}
		}
		w.property(idWinAttributes, p.Bytes())
	}

	w.id(idEnd)
}

func timeToFiletime(t time.Time) uint64 {
	return uint64(t.UnixNano()/100 + filetimeUnixOffset)
}
