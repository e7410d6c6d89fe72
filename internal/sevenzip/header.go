package sevenzip

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/bamsammich/seven/internal/codec"
)

// propertyID is a tag byte in the header database.
type propertyID byte

const (
	idEnd propertyID = iota
	idHeader
	idArchiveProperties
	idAdditionalStreamsInfo
	idMainStreamsInfo
	idFilesInfo
	idPackInfo
	idUnpackInfo
	idSubStreamsInfo
	idSize
	idCRC
	idFolder
	idCodersUnpackSize
	idNumUnpackStream
	idEmptyStream
	idEmptyFile
	idAnti
	idName
	idCTime
	idATime
	idMTime
	idWinAttributes
	idComment
	idEncodedHeader
	idStartPos
	idDummy
)

var propertyNames = [...]string{
	idEnd:                   "kEnd",
	idHeader:                "kHeader",
	idArchiveProperties:     "kArchiveProperties",
	idAdditionalStreamsInfo: "kAdditionalStreamsInfo",
	idMainStreamsInfo:       "kMainStreamsInfo",
	idFilesInfo:             "kFilesInfo",
	idPackInfo:              "kPackInfo",
	idUnpackInfo:            "kUnpackInfo",
	idSubStreamsInfo:        "kSubStreamsInfo",
	idSize:                  "kSize",
	idCRC:                   "kCRC",
	idFolder:                "kFolder",
	idCodersUnpackSize:      "kCodersUnpackSize",
	idNumUnpackStream:       "kNumUnpackStream",
	idEmptyStream:           "kEmptyStream",
	idEmptyFile:             "kEmptyFile",
	idAnti:                  "kAnti",
	idName:                  "kName",
	idCTime:                 "kCTime",
	idATime:                 "kATime",
	idMTime:                 "kMTime",
	idWinAttributes:         "kWinAttributes",
	idComment:               "kComment",
	idEncodedHeader:         "kEncodedHeader",
	idStartPos:              "kStartPos",
	idDummy:                 "kDummy",
}

func (id propertyID) String() string {
	if int(id) < len(propertyNames) {
		return propertyNames[id]
	}
	return fmt.Sprintf("property(0x%02x)", byte(id))
}

// structural reports whether id names a container or list that only has a
// meaning in one place. Seeing one elsewhere means the header is corrupt;
// anything else unexpected is skipped by its declared size.
func (id propertyID) structural() bool {
	return id >= idHeader && id <= idNumUnpackStream || id == idEncodedHeader
}

// Sanity limits against hostile headers.
const (
	maxCoders        = 64
	maxFolderStreams = 64
	maxCount         = 1 << 24
)

// parseHeaderBlock decodes the next-header block. Exactly one of the
// results is non-nil: a plain header, or the streams describing an encoded
// header that must be decoded and parsed again.
func parseHeaderBlock(buf []byte) (*Header, *StreamsInfo, error) {
	c := newCursor(buf)
	b, err := c.readByte()
	if err != nil {
		return nil, nil, err
	}
	switch id := propertyID(b); id {
	case idHeader:
		h, err := readHeader(c)
		if err != nil {
			return nil, nil, err
		}
		return h, nil, nil
	case idEncodedHeader:
		si, err := readStreamsInfo(c)
		if err != nil {
			return nil, nil, fmt.Errorf("encoded header: %w", err)
		}
		return nil, si, nil
	default:
		return nil, nil, fmt.Errorf("header starts with %s: %w", id, ErrMalformedHeader)
	}
}

func (c *cursor) readID() (propertyID, error) {
	b, err := c.readByte()
	return propertyID(b), err
}

// readBlock returns a sub-cursor over a size-prefixed payload. A declared
// size past the end of the buffer is a structural error.
func (c *cursor) readBlock(size uint64) (*cursor, error) {
	if size > uint64(c.remaining()) {
		return nil, fmt.Errorf("declared size %d exceeds %d remaining bytes: %w",
			size, c.remaining(), ErrMalformedHeader)
	}
	b, _ := c.readBytes(size)
	return newCursor(b), nil
}

// skipProperty skips an unrecognised property by its declared size.
func (c *cursor) skipProperty(context string, id propertyID) error {
	if id.structural() {
		return fmt.Errorf("%s: unexpected %s: %w", context, id, ErrMalformedHeader)
	}
	size, err := c.readNumber()
	if err != nil {
		return err
	}
	_, err = c.readBlock(size)
	return err
}

// expectID reads the next id, skipping unknown properties, and fails if it
// is not want.
func (c *cursor) expectID(context string, want propertyID) error {
	for {
		id, err := c.readID()
		if err != nil {
			return err
		}
		if id == want {
			return nil
		}
		if id == idEnd {
			return fmt.Errorf("%s: missing %s: %w", context, want, ErrMalformedHeader)
		}
		if err := c.skipProperty(context, id); err != nil {
			return err
		}
	}
}

// readSectionID reads the id of the next section, skipping unknown
// properties that sit between the sections.
func (c *cursor) readSectionID(context string) (propertyID, error) {
	for {
		id, err := c.readID()
		if err != nil {
			return 0, err
		}
		if id == idEnd || id.structural() {
			return id, nil
		}
		if err := c.skipProperty(context, id); err != nil {
			return 0, err
		}
	}
}

func readHeader(c *cursor) (*Header, error) {
	h := &Header{}
	id, err := c.readSectionID("header")
	if err != nil {
		return nil, err
	}

	if id == idArchiveProperties {
		if err := readArchiveProperties(c); err != nil {
			return nil, err
		}
		if id, err = c.readSectionID("header"); err != nil {
			return nil, err
		}
	}

	if id == idAdditionalStreamsInfo {
		// Only referenced by external properties, which we reject below.
		if _, err := readStreamsInfo(c); err != nil {
			return nil, fmt.Errorf("additional streams: %w", err)
		}
		if id, err = c.readSectionID("header"); err != nil {
			return nil, err
		}
	}

	if id == idMainStreamsInfo {
		if h.Streams, err = readStreamsInfo(c); err != nil {
			return nil, fmt.Errorf("main streams: %w", err)
		}
		if id, err = c.readSectionID("header"); err != nil {
			return nil, err
		}
	}

	if id == idFilesInfo {
		if h.Entries, err = readFilesInfo(c); err != nil {
			return nil, fmt.Errorf("files info: %w", err)
		}
		if id, err = c.readSectionID("header"); err != nil {
			return nil, err
		}
	}

	if id != idEnd {
		return nil, fmt.Errorf("header: unexpected %s: %w", id, ErrMalformedHeader)
	}

	if err := mapFiles(h.Streams, h.Entries); err != nil {
		return nil, err
	}
	return h, nil
}

func readArchiveProperties(c *cursor) error {
	for {
		id, err := c.readID()
		if err != nil {
			return err
		}
		if id == idEnd {
			return nil
		}
		size, err := c.readNumber()
		if err != nil {
			return err
		}
		if _, err := c.readBlock(size); err != nil {
			return err
		}
	}
}

func readStreamsInfo(c *cursor) (*StreamsInfo, error) {
	si := &StreamsInfo{}
	id, err := c.readSectionID("streams info")
	if err != nil {
		return nil, err
	}

	if id == idPackInfo {
		if err := readPackInfo(c, &si.Pack); err != nil {
			return nil, fmt.Errorf("pack info: %w", err)
		}
		if id, err = c.readSectionID("streams info"); err != nil {
			return nil, err
		}
	}

	if id == idUnpackInfo {
		if si.Folders, err = readUnpackInfo(c); err != nil {
			return nil, fmt.Errorf("unpack info: %w", err)
		}
		if id, err = c.readSectionID("streams info"); err != nil {
			return nil, err
		}
	}

	substreamsRead := false
	if id == idSubStreamsInfo {
		if err := readSubStreamsInfo(c, si); err != nil {
			return nil, fmt.Errorf("substreams info: %w", err)
		}
		substreamsRead = true
		if id, err = c.readSectionID("streams info"); err != nil {
			return nil, err
		}
	}

	if id != idEnd {
		return nil, fmt.Errorf("streams info: unexpected %s: %w", id, ErrMalformedHeader)
	}
	if !substreamsRead {
		si.SubStreams = defaultSubStreams(si.Folders)
	}
	if err := assignPackStreams(si); err != nil {
		return nil, err
	}
	return si, nil
}

func readPackInfo(c *cursor, p *PackInfo) error {
	var err error
	if p.PackPos, err = c.readNumber(); err != nil {
		return err
	}
	n, err := c.readInt(maxCount)
	if err != nil {
		return err
	}
	if err := c.expectID("pack info", idSize); err != nil {
		return err
	}
	p.Sizes = make([]uint64, n)
	for i := range p.Sizes {
		if p.Sizes[i], err = c.readNumber(); err != nil {
			return err
		}
	}

	for {
		id, err := c.readID()
		if err != nil {
			return err
		}
		switch id {
		case idEnd:
			return nil
		case idCRC:
			if p.CRCDefined, p.CRCs, err = c.readDigests(n); err != nil {
				return err
			}
		default:
			if err := c.skipProperty("pack info", id); err != nil {
				return err
			}
		}
	}
}

func readUnpackInfo(c *cursor) ([]Folder, error) {
	id, err := c.readID()
	if err != nil {
		return nil, err
	}
	if id != idFolder {
		return nil, fmt.Errorf("expected kFolder, got %s: %w", id, ErrMalformedHeader)
	}
	n, err := c.readInt(maxCount)
	if err != nil {
		return nil, err
	}
	if err := c.readExternal(); err != nil {
		return nil, err
	}

	folders := make([]Folder, n)
	for i := range folders {
		if err := readFolder(c, &folders[i]); err != nil {
			return nil, fmt.Errorf("folder %d: %w", i, err)
		}
	}

	if err := c.expectID("unpack info", idCodersUnpackSize); err != nil {
		return nil, err
	}
	for i := range folders {
		f := &folders[i]
		f.UnpackSizes = make([]uint64, f.NumOutStreams())
		for j := range f.UnpackSizes {
			if f.UnpackSizes[j], err = c.readNumber(); err != nil {
				return nil, err
			}
		}
	}

	for {
		id, err := c.readID()
		if err != nil {
			return nil, err
		}
		switch id {
		case idEnd:
			for i := range folders {
				if _, err := folders[i].plan(); err != nil {
					return nil, fmt.Errorf("folder %d: %w", i, err)
				}
			}
			return folders, nil
		case idCRC:
			defined, crcs, err := c.readDigests(n)
			if err != nil {
				return nil, err
			}
			for i := range folders {
				folders[i].HasCRC = defined[i]
				folders[i].CRC = crcs[i]
			}
		default:
			if err := c.skipProperty("unpack info", id); err != nil {
				return nil, err
			}
		}
	}
}

// readExternal reads the "external" byte. Data stored in additional streams
// is not supported.
func (c *cursor) readExternal() error {
	ext, err := c.readByte()
	if err != nil {
		return err
	}
	if ext != 0 {
		return fmt.Errorf("external data reference: %w", ErrMalformedHeader)
	}
	return nil
}

// Coder flag bits.
const (
	coderIDSizeMask    = 0x0F
	coderIsComplex     = 0x10
	coderHasProperties = 0x20
	coderReserved      = 0x40
	coderAlternatives  = 0x80
)

func readFolder(c *cursor, f *Folder) error {
	numCoders, err := c.readInt(maxCoders)
	if err != nil {
		return err
	}
	if numCoders == 0 {
		return fmt.Errorf("folder without coders: %w", ErrMalformedHeader)
	}

	f.Coders = make([]Coder, numCoders)
	totalIn, totalOut := 0, 0
	for i := range f.Coders {
		cd := &f.Coders[i]
		flags, err := c.readByte()
		if err != nil {
			return err
		}
		if flags&(coderReserved|coderAlternatives) != 0 {
			return fmt.Errorf("coder %d flags 0x%02x: %w", i, flags, ErrMalformedHeader)
		}
		id, err := c.readBytes(uint64(flags & coderIDSizeMask))
		if err != nil {
			return err
		}
		if cd.Method, err = codec.MethodFromID(id); err != nil {
			return fmt.Errorf("coder %d: %v: %w", i, err, ErrMalformedHeader)
		}

		cd.NumInStreams, cd.NumOutStreams = 1, 1
		if flags&coderIsComplex != 0 {
			if cd.NumInStreams, err = c.readInt(maxFolderStreams); err != nil {
				return err
			}
			if cd.NumOutStreams, err = c.readInt(maxFolderStreams); err != nil {
				return err
			}
		}
		if flags&coderHasProperties != 0 {
			size, err := c.readNumber()
			if err != nil {
				return err
			}
			props, err := c.readBlock(size)
			if err != nil {
				return err
			}
			cd.Properties = bytes.Clone(props.buf)
		}
		totalIn += cd.NumInStreams
		totalOut += cd.NumOutStreams
	}
	if totalOut == 0 || totalIn > maxFolderStreams || totalOut > maxFolderStreams {
		return fmt.Errorf("folder with %d inputs and %d outputs: %w", totalIn, totalOut, ErrMalformedHeader)
	}

	numBindPairs := totalOut - 1
	if numBindPairs > totalIn {
		return fmt.Errorf("%d bind pairs for %d inputs: %w", numBindPairs, totalIn, ErrMalformedHeader)
	}
	f.BindPairs = make([]BindPair, numBindPairs)
	for i := range f.BindPairs {
		if f.BindPairs[i].InIndex, err = c.readInt(totalIn - 1); err != nil {
			return err
		}
		if f.BindPairs[i].OutIndex, err = c.readInt(totalOut - 1); err != nil {
			return err
		}
	}

	numPacked := totalIn - numBindPairs
	f.PackedStreams = make([]int, numPacked)
	if numPacked == 1 {
		// The single packed input is implied: the lowest unbound input.
		for in := range totalIn {
			if f.findBindPairForIn(in) < 0 {
				f.PackedStreams[0] = in
				return nil
			}
		}
		return fmt.Errorf("no unbound input stream: %w", ErrMalformedFolder)
	}
	for i := range f.PackedStreams {
		if f.PackedStreams[i], err = c.readInt(totalIn - 1); err != nil {
			return err
		}
	}
	return nil
}

func readSubStreamsInfo(c *cursor, si *StreamsInfo) error {
	ss := &si.SubStreams
	ss.NumUnpackStreams = make([]int, len(si.Folders))
	for i := range ss.NumUnpackStreams {
		ss.NumUnpackStreams[i] = 1
	}

	id, err := c.readID()
	if err != nil {
		return err
	}
	if id == idNumUnpackStream {
		for i := range ss.NumUnpackStreams {
			if ss.NumUnpackStreams[i], err = c.readInt(maxCount); err != nil {
				return err
			}
		}
		if id, err = c.readID(); err != nil {
			return err
		}
	}

	// The last substream of every folder is never stored: it is whatever
	// the declared sizes leave of the folder's output.
	hasSizes := id == idSize
	for i := range si.Folders {
		n := ss.NumUnpackStreams[i]
		if n == 0 {
			continue
		}
		if n > 1 && !hasSizes {
			return fmt.Errorf("folder %d has %d substreams but no sizes: %w", i, n, ErrMalformedHeader)
		}
		var sum uint64
		for range n - 1 {
			size, err := c.readNumber()
			if err != nil {
				return err
			}
			sum += size
			if sum < size {
				return fmt.Errorf("substream sizes overflow: %w", ErrMalformedHeader)
			}
			ss.Sizes = append(ss.Sizes, size)
		}
		total := si.Folders[i].UnpackSize()
		if sum > total {
			return fmt.Errorf("folder %d substreams total %d, folder holds %d: %w",
				i, sum, total, ErrMalformedHeader)
		}
		ss.Sizes = append(ss.Sizes, total-sum)
	}
	if hasSizes {
		if id, err = c.readID(); err != nil {
			return err
		}
	}

	// Folders with exactly one substream and a folder CRC already have a
	// digest; kCRC lists digests for all other substreams only.
	numDigests := 0
	for i, f := range si.Folders {
		if n := ss.NumUnpackStreams[i]; n != 1 || !f.HasCRC {
			numDigests += n
		}
	}

	ss.CRCs = make([]uint32, len(ss.Sizes))
	ss.CRCDefined = make([]bool, len(ss.Sizes))
	var explicitDefined []bool
	var explicitCRCs []uint32
	for id != idEnd {
		switch id {
		case idCRC:
			if explicitDefined, explicitCRCs, err = c.readDigests(numDigests); err != nil {
				return err
			}
		default:
			if err := c.skipProperty("substreams info", id); err != nil {
				return err
			}
		}
		if id, err = c.readID(); err != nil {
			return err
		}
	}

	next, explicit := 0, 0
	for i, f := range si.Folders {
		n := ss.NumUnpackStreams[i]
		if n == 1 && f.HasCRC {
			ss.CRCDefined[next] = true
			ss.CRCs[next] = f.CRC
			next++
			continue
		}
		for range n {
			if explicitDefined != nil {
				ss.CRCDefined[next] = explicitDefined[explicit]
				ss.CRCs[next] = explicitCRCs[explicit]
			}
			explicit++
			next++
		}
	}
	return nil
}

// defaultSubStreams is used when kSubStreamsInfo is absent: one substream
// per folder spanning its whole output.
func defaultSubStreams(folders []Folder) SubStreamsInfo {
	ss := SubStreamsInfo{
		NumUnpackStreams: make([]int, len(folders)),
		Sizes:            make([]uint64, len(folders)),
		CRCs:             make([]uint32, len(folders)),
		CRCDefined:       make([]bool, len(folders)),
	}
	for i := range folders {
		ss.NumUnpackStreams[i] = 1
		ss.Sizes[i] = folders[i].UnpackSize()
		ss.CRCs[i] = folders[i].CRC
		ss.CRCDefined[i] = folders[i].HasCRC
	}
	return ss
}

// assignPackStreams records where each folder's packed streams start and
// checks that the pack info covers them all.
func assignPackStreams(si *StreamsInfo) error {
	next := 0
	for i := range si.Folders {
		f := &si.Folders[i]
		f.firstPackStream = next
		next += len(f.PackedStreams)
	}
	if next > len(si.Pack.Sizes) {
		return fmt.Errorf("folders use %d pack streams, archive declares %d: %w",
			next, len(si.Pack.Sizes), ErrMalformedHeader)
	}
	return nil
}

func readFilesInfo(c *cursor) ([]Entry, error) {
	numFiles, err := c.readInt(maxCount)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, numFiles)
	for i := range entries {
		entries[i].HasStream = true
		entries[i].Folder = -1
	}

	var emptyStream, emptyFile, anti []bool
	numEmpty := 0
	for {
		propType, err := c.readNumber()
		if err != nil {
			return nil, err
		}
		if propType == uint64(idEnd) {
			break
		}
		size, err := c.readNumber()
		if err != nil {
			return nil, err
		}
		prop, err := c.readBlock(size)
		if err != nil {
			return nil, err
		}
		if propType > 0xFF {
			continue
		}

		switch id := propertyID(propType); id {
		case idEmptyStream:
			if emptyStream, err = prop.readBitVector(numFiles); err != nil {
				return nil, err
			}
			numEmpty = 0
			for _, e := range emptyStream {
				if e {
					numEmpty++
				}
			}
			emptyFile, anti = nil, nil
		case idEmptyFile:
			if emptyFile, err = prop.readBitVector(numEmpty); err != nil {
				return nil, err
			}
		case idAnti:
			if anti, err = prop.readBitVector(numEmpty); err != nil {
				return nil, err
			}
		case idName:
			if err := readNames(prop, entries); err != nil {
				return nil, err
			}
		case idCTime, idATime, idMTime:
			if err := readTimes(prop, id, entries); err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
		case idWinAttributes:
			if err := readAttributes(prop, entries); err != nil {
				return nil, err
			}
		case idDummy, idStartPos, idComment:
		default:
			if id.structural() {
				return nil, fmt.Errorf("files info: unexpected %s: %w", id, ErrMalformedHeader)
			}
		}
	}

	emptyIndex := 0
	for i := range entries {
		e := &entries[i]
		if emptyStream != nil && emptyStream[i] {
			e.HasStream = false
			if emptyFile != nil {
				e.IsEmptyFile = emptyFile[emptyIndex]
			}
			if anti != nil {
				e.IsAnti = anti[emptyIndex]
			}
			e.IsDir = !e.IsEmptyFile
			emptyIndex++
		}
		if e.HasAttributes && e.Attributes&AttrDirectory != 0 {
			e.IsDir = true
		}
	}
	return entries, nil
}

// readNames decodes the NUL-terminated UTF-16LE names.
func readNames(c *cursor, entries []Entry) error {
	if err := c.readExternal(); err != nil {
		return err
	}
	data := c.buf[c.pos:]
	if len(data)%2 != 0 {
		return fmt.Errorf("names block of odd length %d: %w", len(data), ErrMalformedHeader)
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	i, start := 0, 0
	for pos := 0; pos+1 < len(data); pos += 2 {
		if data[pos] != 0 || data[pos+1] != 0 {
			continue
		}
		if i >= len(entries) {
			return fmt.Errorf("more names than %d files: %w", len(entries), ErrMalformedHeader)
		}
		name, err := dec.Bytes(data[start:pos])
		if err != nil {
			return fmt.Errorf("decode name %d: %v: %w", i, err, ErrMalformedHeader)
		}
		entries[i].Name = string(name)
		i++
		start = pos + 2
	}
	if i != len(entries) {
		return fmt.Errorf("%d names for %d files: %w", i, len(entries), ErrMalformedHeader)
	}
	return nil
}

func readTimes(c *cursor, id propertyID, entries []Entry) error {
	defined, err := c.readAllOrBits(len(entries))
	if err != nil {
		return err
	}
	if err := c.readExternal(); err != nil {
		return err
	}
	for i, ok := range defined {
		if !ok {
			continue
		}
		ft, err := c.readUint64()
		if err != nil {
			return err
		}
		t := filetimeToTime(ft)
		switch id {
		case idCTime:
			entries[i].Created = t
		case idATime:
			entries[i].Accessed = t
		case idMTime:
			entries[i].Modified = t
		}
	}
	return nil
}

func readAttributes(c *cursor, entries []Entry) error {
	defined, err := c.readAllOrBits(len(entries))
	if err != nil {
		return err
	}
	if err := c.readExternal(); err != nil {
		return err
	}
	for i, ok := range defined {
		if !ok {
			continue
		}
		if entries[i].Attributes, err = c.readUint32(); err != nil {
			return err
		}
		entries[i].HasAttributes = true
	}
	return nil
}
