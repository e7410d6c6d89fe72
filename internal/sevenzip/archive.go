package sevenzip

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"
)

// maxHeaderDepth bounds how many times an encoded header may wrap another.
const maxHeaderDepth = 4

// maxHeaderSize bounds the decoded size of an encoded header.
const maxHeaderSize = 1 << 30

// Archive is an opened 7z archive. Metadata is parsed eagerly by Open;
// folder contents are decoded on first read and cached. An Archive is safe
// for concurrent use.
type Archive struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer

	sig    SignatureHeader
	header *Header

	// packOffsets holds the absolute offset of every pack stream.
	packOffsets []uint64
	// firstSubstream is the flat substream index of each folder's first file.
	firstSubstream []int

	files  []*File
	unique []*File
	byName map[string]*File

	decoder Decoder
	log     *slog.Logger
	cache   *folderCache

	mu       sync.RWMutex
	password string
}

// File is one entry of an archive.
type File struct {
	a     *Archive
	entry Entry
}

// Open parses the archive in r, which holds size bytes. Open is
// all-or-nothing: any structural problem fails the whole call.
func Open(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	o := buildOptions(opts)
	a := &Archive{
		r:        r,
		size:     size,
		decoder:  o.decoder,
		log:      o.logger,
		password: o.password,
	}

	sig, err := ReadSignatureHeader(r)
	if err != nil {
		return nil, err
	}
	a.sig = sig

	header, err := a.readHeader()
	if err != nil {
		return nil, err
	}
	a.header = header

	if header.Streams != nil {
		if a.packOffsets, err = packOffsets(header.Streams, size); err != nil {
			return nil, err
		}
		next := 0
		a.firstSubstream = make([]int, len(header.Streams.Folders))
		for i, n := range header.Streams.SubStreams.NumUnpackStreams {
			a.firstSubstream[i] = next
			next += n
		}
	}

	cacheSize := o.cacheSize
	if cacheSize <= 0 {
		cacheSize = a.NumFolders()
	}
	if a.cache, err = newFolderCache(cacheSize); err != nil {
		return nil, fmt.Errorf("folder cache: %w", err)
	}

	a.byName = make(map[string]*File, len(header.Entries))
	for i := range header.Entries {
		f := &File{a: a, entry: header.Entries[i]}
		a.files = append(a.files, f)
		if f.entry.IsAnti {
			continue
		}
		if _, dup := a.byName[f.entry.Name]; dup {
			continue
		}
		a.byName[f.entry.Name] = f
		a.unique = append(a.unique, f)
	}

	a.log.Debug("opened archive",
		"version", fmt.Sprintf("%d.%d", sig.Major, sig.Minor),
		"entries", len(header.Entries),
		"folders", a.NumFolders(),
	)
	return a, nil
}

// OpenFile opens the archive at path. The returned Archive owns the file and
// must be closed.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := Open(f, info.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// Close releases the underlying file when the archive was opened with
// OpenFile. It is a no-op otherwise.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// readHeader reads the next-header block, decoding encoded headers until a
// plain one is found.
func (a *Archive) readHeader() (*Header, error) {
	if a.sig.NextHeaderSize == 0 {
		return &Header{}, nil
	}
	start := SignatureHeaderSize + a.sig.NextHeaderOffset
	end := start + a.sig.NextHeaderSize
	if start < a.sig.NextHeaderOffset || end < start || end > uint64(a.size) {
		return nil, fmt.Errorf("next header at %d+%d beyond archive size %d: %w",
			start, a.sig.NextHeaderSize, a.size, ErrTruncated)
	}
	buf := make([]byte, a.sig.NextHeaderSize)
	if err := readFullAt(a.r, buf, int64(start)); err != nil {
		return nil, fmt.Errorf("read next header: %w", err)
	}
	if got := crc32.ChecksumIEEE(buf); got != a.sig.NextHeaderCRC {
		return nil, fmt.Errorf("next header crc %08x, want %08x: %w", got, a.sig.NextHeaderCRC, ErrFormat)
	}

	for depth := 0; ; depth++ {
		header, encoded, err := parseHeaderBlock(buf)
		if err != nil {
			return nil, err
		}
		if header != nil {
			return header, nil
		}
		if depth == maxHeaderDepth {
			return nil, fmt.Errorf("encoded header nested %d deep: %w", depth, ErrMalformedHeader)
		}
		if buf, err = a.decodeHeaderStreams(encoded); err != nil {
			return nil, fmt.Errorf("decode header: %w", err)
		}
		a.log.Debug("decoded encoded header", "size", len(buf), "depth", depth+1)
	}
}

// decodeHeaderStreams decodes and concatenates every folder of an encoded
// header.
func (a *Archive) decodeHeaderStreams(si *StreamsInfo) ([]byte, error) {
	offsets, err := packOffsets(si, a.size)
	if err != nil {
		return nil, err
	}
	var out []byte
	for i := range si.Folders {
		f := &si.Folders[i]
		if f.UnpackSize() > maxHeaderSize {
			return nil, fmt.Errorf("encoded header of %d bytes: %w", f.UnpackSize(), ErrMalformedHeader)
		}
		data, err := a.decodeFolder(si, offsets, i, a.Password())
		if err != nil {
			return nil, err
		}
		if f.HasCRC && crc32.ChecksumIEEE(data) != f.CRC {
			if f.Encrypted() {
				return nil, ErrWrongPassword
			}
			return nil, fmt.Errorf("encoded header crc: %w", ErrMalformedHeader)
		}
		out = append(out, data...)
	}
	return out, nil
}

// packOffsets returns the absolute offset of every pack stream and checks
// that they all lie inside the archive.
func packOffsets(si *StreamsInfo, size int64) ([]uint64, error) {
	offsets := make([]uint64, len(si.Pack.Sizes))
	pos := SignatureHeaderSize + si.Pack.PackPos
	if pos < si.Pack.PackPos {
		return nil, fmt.Errorf("pack position %d: %w", si.Pack.PackPos, ErrMalformedHeader)
	}
	for i, n := range si.Pack.Sizes {
		offsets[i] = pos
		next := pos + n
		if next < pos || next > uint64(size) {
			return nil, fmt.Errorf("pack stream %d at %d+%d beyond archive size %d: %w",
				i, pos, n, size, ErrTruncated)
		}
		pos = next
	}
	return offsets, nil
}

// decodeFolder reads the packed streams of folder i and decodes them.
func (a *Archive) decodeFolder(si *StreamsInfo, offsets []uint64, i int, password string) ([]byte, error) {
	f := &si.Folders[i]
	packed := make([][]byte, len(f.PackedStreams))
	for j := range packed {
		k := f.firstPackStream + j
		buf := make([]byte, si.Pack.Sizes[k])
		if err := readFullAt(a.r, buf, int64(offsets[k])); err != nil {
			return nil, fmt.Errorf("read pack stream %d: %w", k, err)
		}
		packed[j] = buf
	}
	data, err := decodeFolder(f, packed, a.decoder, password)
	if err != nil {
		return nil, fmt.Errorf("folder %d: %w", i, err)
	}
	return data, nil
}

// loadFolder decodes folder i of the main streams. For encrypted folders
// every recorded CRC is checked, since a mismatch is the only sign of a
// wrong key.
func (a *Archive) loadFolder(i int) ([]byte, error) {
	si := a.header.Streams
	data, err := a.decodeFolder(si, a.packOffsets, i, a.Password())
	if err != nil {
		return nil, err
	}
	f := &si.Folders[i]
	a.log.Debug("decoded folder", "folder", i, "coders", len(f.Coders), "size", len(data))
	if !f.Encrypted() {
		return data, nil
	}

	if f.HasCRC && crc32.ChecksumIEEE(data) != f.CRC {
		return nil, fmt.Errorf("folder %d: %w", i, ErrWrongPassword)
	}
	ss := si.SubStreams
	var offset uint64
	for k := range ss.NumUnpackStreams[i] {
		flat := a.firstSubstream[i] + k
		size := ss.Sizes[flat]
		if ss.CRCDefined[flat] && crc32.ChecksumIEEE(data[offset:offset+size]) != ss.CRCs[flat] {
			return nil, fmt.Errorf("folder %d substream %d: %w", i, k, ErrWrongPassword)
		}
		offset += size
	}
	return data, nil
}

// SignatureHeader returns the archive's start header.
func (a *Archive) SignatureHeader() SignatureHeader {
	return a.sig
}

// SetPassword replaces the password used for encrypted folders. Folders that
// failed to decode are retried on the next read.
func (a *Archive) SetPassword(password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.password = password
}

// Password returns the current password.
func (a *Archive) Password() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.password
}

// Encrypted reports whether any folder needs a password.
func (a *Archive) Encrypted() bool {
	if a.header.Streams == nil {
		return false
	}
	for i := range a.header.Streams.Folders {
		if a.header.Streams.Folders[i].Encrypted() {
			return true
		}
	}
	return false
}

// Names returns the names of the non-anti entries, first occurrence only,
// in declaration order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.unique))
	for i, f := range a.unique {
		names[i] = f.entry.Name
	}
	return names
}

// Files returns the entries named by Names.
func (a *Archive) Files() []*File {
	return append([]*File(nil), a.unique...)
}

// Entries returns every entry as declared, including anti items and
// duplicates.
func (a *Archive) Entries() []*File {
	return append([]*File(nil), a.files...)
}

// Member returns the file called name, or nil.
func (a *Archive) Member(name string) *File {
	return a.byName[name]
}

// NumFolders is the number of folders in the main streams.
func (a *Archive) NumFolders() int {
	if a.header.Streams == nil {
		return 0
	}
	return len(a.header.Streams.Folders)
}

// FolderOf returns the folder holding f's data, or -1 when f has no stream.
func (a *Archive) FolderOf(f *File) int {
	return f.entry.Folder
}

// Folder returns the parsed description of folder i.
func (a *Archive) Folder(i int) *Folder {
	return &a.header.Streams.Folders[i]
}

// ReadFolder returns the decoded contents of folder i. The result is shared
// with the cache and must not be modified.
func (a *Archive) ReadFolder(i int) ([]byte, error) {
	if i < 0 || i >= a.NumFolders() {
		return nil, fmt.Errorf("folder %d of %d: %w", i, a.NumFolders(), os.ErrNotExist)
	}
	return a.cache.get(i, func() ([]byte, error) { return a.loadFolder(i) })
}

// Name is the entry's path inside the archive.
func (f *File) Name() string { return f.entry.Name }

// Size is the uncompressed size.
func (f *File) Size() uint64 { return f.entry.Size }

// Entry returns the entry's metadata.
func (f *File) Entry() Entry { return f.entry }

// Read returns the file's contents, decoding its folder if needed. Entries
// without a stream read as empty without touching any folder.
func (f *File) Read() ([]byte, error) {
	if !f.entry.HasStream {
		return []byte{}, nil
	}
	data, err := f.a.ReadFolder(f.entry.Folder)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.entry.Name, err)
	}
	end := f.entry.Offset + f.entry.Size
	if end < f.entry.Offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("read %s: substream %d+%d past folder end %d: %w",
			f.entry.Name, f.entry.Offset, f.entry.Size, len(data), ErrMalformedHeader)
	}
	return bytes.Clone(data[f.entry.Offset:end]), nil
}

// Open returns a reader over the file's contents.
func (f *File) Open() (io.ReadCloser, error) {
	data, err := f.Read()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// CheckCRC reads the file and compares its CRC-32 with the recorded one. It
// returns false without error when no CRC was recorded.
func (f *File) CheckCRC() (bool, error) {
	if !f.entry.HasCRC {
		return false, nil
	}
	data, err := f.Read()
	if err != nil {
		return false, err
	}
	return crc32.ChecksumIEEE(data) == f.entry.CRC, nil
}
