package codec

import "fmt"

// Method identifies a coder. The archive stores it as a big-endian byte
// string of up to eight bytes; Method is that string read as an integer.
type Method uint64

// Methods with a decoder in Default, plus the ones we only name.
const (
	Copy      Method = 0x00
	Delta     Method = 0x03
	X86       Method = 0x04
	LZMA2     Method = 0x21
	LZMA      Method = 0x030101
	BCJ       Method = 0x03030103
	BCJ2      Method = 0x0303011B
	PPC       Method = 0x03030205
	IA64      Method = 0x03030401
	ARM       Method = 0x03030501
	ARMT      Method = 0x03030701
	SPARC     Method = 0x03030805
	Deflate   Method = 0x040108
	Deflate64 Method = 0x040109
	BZip2     Method = 0x040202
	Zstd      Method = 0x04F71101
	Brotli    Method = 0x04F71102
	LZ4       Method = 0x04F71104
	AES       Method = 0x06F10701
)

var methodNames = map[Method]string{
	Copy:      "Copy",
	Delta:     "Delta",
	X86:       "BCJ",
	LZMA2:     "LZMA2",
	LZMA:      "LZMA",
	BCJ:       "BCJ",
	BCJ2:      "BCJ2",
	PPC:       "PPC",
	IA64:      "IA64",
	ARM:       "ARM",
	ARMT:      "ARMT",
	SPARC:     "SPARC",
	Deflate:   "Deflate",
	Deflate64: "Deflate64",
	BZip2:     "BZip2",
	Zstd:      "ZSTD",
	Brotli:    "Brotli",
	LZ4:       "LZ4",
	AES:       "7zAES",
}

// MethodFromID converts the raw coder id bytes from a folder record.
func MethodFromID(id []byte) (Method, error) {
	if len(id) > 8 {
		return 0, fmt.Errorf("method id of %d bytes: %w", len(id), ErrUnsupportedMethod)
	}
	var m Method
	for _, b := range id {
		m = m<<8 | Method(b)
	}
	return m, nil
}

// ID returns the shortest big-endian byte string for m. Copy is a single
// zero byte.
func (m Method) ID() []byte {
	if m == 0 {
		return []byte{0}
	}
	var id []byte
	for v := m; v != 0; v >>= 8 {
		id = append([]byte{byte(v)}, id...)
	}
	return id
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("%X", m.ID())
}

// IsEncryption reports whether m decrypts its input.
func (m Method) IsEncryption() bool {
	return m == AES
}
