package sevenzip

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/seven/internal/codec"
)

// Methods understood by fakeDecoder.
const (
	methodSplit codec.Method = 0x7F0001 // 1 in, 2 out: halves
	methodJoin  codec.Method = 0x7F0002 // 2 in, 1 out: in1 then in0
	methodUpper codec.Method = 0x7F0003
	methodFail  codec.Method = 0x7F0004
)

// fakeDecoder records every call and implements a few trivial coders.
// codec.AES passes data through unchanged.
type fakeDecoder struct {
	mu    sync.Mutex
	calls []codec.Method
}

func (d *fakeDecoder) Decode(req codec.Request) ([][]byte, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req.Method)
	d.mu.Unlock()

	switch req.Method {
	case methodSplit:
		in := req.Inputs[0]
		half := len(in) / 2
		return [][]byte{in[:half], in[half:]}, nil
	case methodJoin:
		return [][]byte{append(bytes.Clone(req.Inputs[1]), req.Inputs[0]...)}, nil
	case methodUpper:
		return [][]byte{bytes.ToUpper(req.Inputs[0])}, nil
	case codec.Copy, codec.AES:
		return [][]byte{req.Inputs[0][:req.OutputSizes[0]]}, nil
	case methodFail:
		return nil, fmt.Errorf("bad data: %w", codec.ErrData)
	default:
		return nil, fmt.Errorf("%s: %w", req.Method, codec.ErrUnsupportedMethod)
	}
}

func (d *fakeDecoder) numCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func simpleCoder(m codec.Method) Coder {
	return Coder{Method: m, NumInStreams: 1, NumOutStreams: 1}
}

func TestMainOutput(t *testing.T) {
	f := bcj2Folder()
	out, err := f.MainOutput()
	require.NoError(t, err)
	assert.Equal(t, 0, out)
	assert.Equal(t, uint64(100), f.UnpackSize())
}

func TestMainOutputRequiresExactlyOneSink(t *testing.T) {
	twoSinks := Folder{Coders: []Coder{simpleCoder(codec.Copy), simpleCoder(codec.Copy)}}
	_, err := twoSinks.MainOutput()
	assert.ErrorIs(t, err, ErrMalformedFolder)

	noSink := Folder{
		Coders:    []Coder{simpleCoder(codec.Copy)},
		BindPairs: []BindPair{{InIndex: 0, OutIndex: 0}},
	}
	_, err = noSink.MainOutput()
	assert.ErrorIs(t, err, ErrMalformedFolder)
}

func TestPlanOrdersByDependency(t *testing.T) {
	f := bcj2Folder()
	order, err := f.plan()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 0}, order)
}

func TestDecodeFolderMultiOutputCoder(t *testing.T) {
	// The joiner is declared first but needs both outputs of the splitter.
	f := &Folder{
		Coders: []Coder{
			{Method: methodJoin, NumInStreams: 2, NumOutStreams: 1},
			{Method: methodSplit, NumInStreams: 1, NumOutStreams: 2},
		},
		BindPairs: []BindPair{
			{InIndex: 0, OutIndex: 1},
			{InIndex: 1, OutIndex: 2},
		},
		PackedStreams: []int{2},
		UnpackSizes:   []uint64{12, 6, 6},
	}
	dec := &fakeDecoder{}
	out, err := decodeFolder(f, [][]byte{[]byte("hello world!")}, dec, "")
	require.NoError(t, err)
	assert.Equal(t, "world!hello ", string(out))
	assert.Equal(t, []codec.Method{methodSplit, methodJoin}, dec.calls, "splitter runs once for both outputs")
}

func TestDecodeFolderChain(t *testing.T) {
	f := &Folder{
		Coders:        []Coder{simpleCoder(methodUpper), simpleCoder(codec.Copy)},
		BindPairs:     []BindPair{{InIndex: 0, OutIndex: 1}},
		PackedStreams: []int{1},
		UnpackSizes:   []uint64{3, 3},
	}
	out, err := decodeFolder(f, [][]byte{[]byte("abcdef")}, &fakeDecoder{}, "")
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))
}

func TestDecodeFolderCycle(t *testing.T) {
	f := &Folder{
		Coders: []Coder{simpleCoder(methodUpper), simpleCoder(methodUpper), simpleCoder(methodUpper)},
		BindPairs: []BindPair{
			{InIndex: 0, OutIndex: 1},
			{InIndex: 1, OutIndex: 0},
		},
		PackedStreams: []int{2},
		UnpackSizes:   []uint64{1, 1, 1},
	}
	dec := &fakeDecoder{}
	_, err := decodeFolder(f, [][]byte{[]byte("x")}, dec, "")
	assert.ErrorIs(t, err, ErrMalformedFolder)
	assert.Zero(t, dec.numCalls(), "no coder may run before the plan is known")
}

func TestDecodeFolderUnfedInput(t *testing.T) {
	f := &Folder{
		Coders:        []Coder{{Method: methodJoin, NumInStreams: 2, NumOutStreams: 1}},
		PackedStreams: []int{0},
		UnpackSizes:   []uint64{1},
	}
	dec := &fakeDecoder{}
	_, err := decodeFolder(f, [][]byte{[]byte("x")}, dec, "")
	assert.ErrorIs(t, err, ErrMalformedFolder)
	assert.Zero(t, dec.numCalls())
}

func TestDecodeFolderSizeMismatch(t *testing.T) {
	f := &Folder{
		Coders:        []Coder{simpleCoder(methodUpper)},
		PackedStreams: []int{0},
		UnpackSizes:   []uint64{10},
	}
	_, err := decodeFolder(f, [][]byte{[]byte("short")}, &fakeDecoder{}, "")
	assert.ErrorIs(t, err, codec.ErrData)
}

func encryptedFolder(inner codec.Method) *Folder {
	return &Folder{
		Coders:        []Coder{simpleCoder(inner), simpleCoder(codec.AES)},
		BindPairs:     []BindPair{{InIndex: 0, OutIndex: 1}},
		PackedStreams: []int{1},
		UnpackSizes:   []uint64{4, 4},
	}
}

func TestDecodeFolderNoPassword(t *testing.T) {
	dec := &fakeDecoder{}
	_, err := decodeFolder(encryptedFolder(codec.Copy), [][]byte{[]byte("data")}, dec, "")
	assert.ErrorIs(t, err, ErrNoPassword)
	assert.Zero(t, dec.numCalls())
}

func TestDecodeFolderWrongPassword(t *testing.T) {
	_, err := decodeFolder(encryptedFolder(methodFail), [][]byte{[]byte("data")}, &fakeDecoder{}, "secret")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestDecodeFolderEncryptedUnsupportedMethod(t *testing.T) {
	_, err := decodeFolder(encryptedFolder(0x7FFFFF), [][]byte{[]byte("data")}, &fakeDecoder{}, "secret")
	assert.ErrorIs(t, err, codec.ErrUnsupportedMethod)
	assert.NotErrorIs(t, err, ErrWrongPassword)
}

func TestDecodeFolderWithRegistry(t *testing.T) {
	payload := bytes.Repeat([]byte("solid block "), 200)
	tf := lzmaPacker(t, payload)
	out, err := decodeFolder(&tf.folder, tf.packed, codec.Default(), "")
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecodeFolderAESWithRegistry(t *testing.T) {
	payload := []byte("attack at dawn, bring snacks")
	tf := aesPacker("correct horse", copyPacker)(t, payload)
	out, err := decodeFolder(&tf.folder, tf.packed, codec.Default(), "correct horse")
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
