package codec

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsupportedMethod is returned for coders without a registered decoder.
	ErrUnsupportedMethod = errors.New("unsupported compression method")

	// ErrProperties means a coder's properties blob could not be interpreted.
	ErrProperties = errors.New("invalid coder properties")

	// ErrData means the coder input is corrupt or does not produce the
	// declared output size.
	ErrData = errors.New("corrupt coder data")
)

// Request is one coder invocation inside a folder.
type Request struct {
	Method     Method
	Properties []byte

	// Inputs holds one buffer per coder input stream, in coder order.
	Inputs [][]byte

	// OutputSizes holds the declared size of each coder output stream.
	OutputSizes []uint64

	// Password is only consulted by encryption coders.
	Password string
}

// DecodeFunc decodes one coder. It returns one buffer per output stream.
type DecodeFunc func(req Request) ([][]byte, error)

type coderSpec struct {
	numIn  int
	numOut int
	fn     DecodeFunc
}

// Registry maps methods to decoders. The zero value is not usable; use
// NewRegistry or Default.
type Registry struct {
	mu     sync.RWMutex
	coders map[Method]coderSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{coders: make(map[Method]coderSpec)}
}

// Default returns a registry with every built-in decoder registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Copy, 1, 1, decodeCopy)
	r.Register(Delta, 1, 1, decodeDelta)
	r.Register(X86, 1, 1, decodeBCJ)
	r.Register(BCJ, 1, 1, decodeBCJ)
	r.Register(BCJ2, 4, 1, decodeBCJ2)
	r.Register(LZMA, 1, 1, decodeLZMA)
	r.Register(LZMA2, 1, 1, decodeLZMA2)
	r.Register(Deflate, 1, 1, decodeDeflate)
	r.Register(BZip2, 1, 1, decodeBZip2)
	r.Register(Zstd, 1, 1, decodeZstd)
	r.Register(LZ4, 1, 1, decodeLZ4)
	r.Register(AES, 1, 1, decodeAES)
	return r
}

// Register installs fn for m, replacing any previous decoder. numIn and
// numOut are the stream counts the method must be declared with.
func (r *Registry) Register(m Method, numIn, numOut int, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coders[m] = coderSpec{numIn: numIn, numOut: numOut, fn: fn}
}

// Supports reports whether a decoder is registered for m.
func (r *Registry) Supports(m Method) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.coders[m]
	return ok
}

// Decode runs the decoder registered for req.Method. Every returned buffer
// is checked against the declared output size.
func (r *Registry) Decode(req Request) ([][]byte, error) {
	r.mu.RLock()
	c, ok := r.coders[req.Method]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", req.Method, ErrUnsupportedMethod)
	}
	if len(req.Inputs) != c.numIn || len(req.OutputSizes) != c.numOut {
		return nil, fmt.Errorf("%s: coder declared %d inputs and %d outputs, want %d and %d: %w",
			req.Method, len(req.Inputs), len(req.OutputSizes), c.numIn, c.numOut, ErrProperties)
	}

	outs, err := c.fn(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Method, err)
	}
	if len(outs) != len(req.OutputSizes) {
		return nil, fmt.Errorf("%s: produced %d outputs, want %d: %w",
			req.Method, len(outs), len(req.OutputSizes), ErrData)
	}
	for i, out := range outs {
		if uint64(len(out)) != req.OutputSizes[i] {
			return nil, fmt.Errorf("%s: output %d is %d bytes, want %d: %w",
				req.Method, i, len(out), req.OutputSizes[i], ErrData)
		}
	}
	return outs, nil
}

// outputSize returns the single declared output size as an int.
func outputSize(req Request) (int, error) {
	size := req.OutputSizes[0]
	if size > maxOutputSize {
		return 0, fmt.Errorf("output size %d too large: %w", size, ErrData)
	}
	return int(size), nil
}

// maxOutputSize bounds in-memory decode buffers.
const maxOutputSize = 1 << 40

func decodeCopy(req Request) ([][]byte, error) {
	size, err := outputSize(req)
	if err != nil {
		return nil, err
	}
	in := req.Inputs[0]
	if len(in) < size {
		return nil, fmt.Errorf("copy of %d bytes from %d byte input: %w", size, len(in), ErrData)
	}
	return [][]byte{in[:size]}, nil
}
