package sevenzip

import (
	"errors"
	"fmt"

	"github.com/bamsammich/seven/internal/codec"
)

// Decoder runs a single coder of a folder. *codec.Registry implements it.
type Decoder interface {
	Decode(req codec.Request) ([][]byte, error)
}

func (f *Folder) findBindPairForIn(in int) int {
	for i, bp := range f.BindPairs {
		if bp.InIndex == in {
			return i
		}
	}
	return -1
}

func (f *Folder) findBindPairForOut(out int) int {
	for i, bp := range f.BindPairs {
		if bp.OutIndex == out {
			return i
		}
	}
	return -1
}

func (f *Folder) findPackedStream(in int) int {
	for i, p := range f.PackedStreams {
		if p == in {
			return i
		}
	}
	return -1
}

// MainOutput returns the index of the folder's sink: the only output stream
// no bind pair consumes.
func (f *Folder) MainOutput() (int, error) {
	sink := -1
	for out := range f.NumOutStreams() {
		if f.findBindPairForOut(out) >= 0 {
			continue
		}
		if sink >= 0 {
			return -1, fmt.Errorf("outputs %d and %d are both unbound: %w", sink, out, ErrMalformedFolder)
		}
		sink = out
	}
	if sink < 0 {
		return -1, fmt.Errorf("no unbound output: %w", ErrMalformedFolder)
	}
	return sink, nil
}

// streamStarts returns the first folder-wide input and output index of
// every coder.
func (f *Folder) streamStarts() (inStart, outStart []int) {
	inStart = make([]int, len(f.Coders))
	outStart = make([]int, len(f.Coders))
	in, out := 0, 0
	for i, c := range f.Coders {
		inStart[i], outStart[i] = in, out
		in += c.NumInStreams
		out += c.NumOutStreams
	}
	return inStart, outStart
}

// plan checks the coder graph and returns the coders in an order where each
// coder runs after everything it reads from.
func (f *Folder) plan() ([]int, error) {
	if _, err := f.MainOutput(); err != nil {
		return nil, err
	}
	totalIn, totalOut := f.NumInStreams(), f.NumOutStreams()
	if len(f.UnpackSizes) != totalOut {
		return nil, fmt.Errorf("%d unpack sizes for %d outputs: %w", len(f.UnpackSizes), totalOut, ErrMalformedFolder)
	}

	fedIn := make([]bool, totalIn)
	boundOut := make([]bool, totalOut)
	for _, bp := range f.BindPairs {
		if bp.InIndex < 0 || bp.InIndex >= totalIn || bp.OutIndex < 0 || bp.OutIndex >= totalOut {
			return nil, fmt.Errorf("bind pair %d<-%d out of range: %w", bp.InIndex, bp.OutIndex, ErrMalformedFolder)
		}
		if fedIn[bp.InIndex] || boundOut[bp.OutIndex] {
			return nil, fmt.Errorf("stream bound twice by pair %d<-%d: %w", bp.InIndex, bp.OutIndex, ErrMalformedFolder)
		}
		fedIn[bp.InIndex] = true
		boundOut[bp.OutIndex] = true
	}
	for _, p := range f.PackedStreams {
		if p < 0 || p >= totalIn || fedIn[p] {
			return nil, fmt.Errorf("packed stream input %d is invalid: %w", p, ErrMalformedFolder)
		}
		fedIn[p] = true
	}
	for in, ok := range fedIn {
		if !ok {
			return nil, fmt.Errorf("input %d has no source: %w", in, ErrMalformedFolder)
		}
	}

	inStart, outStart := f.streamStarts()
	available := make([]bool, totalOut)
	done := make([]bool, len(f.Coders))
	order := make([]int, 0, len(f.Coders))
	for len(order) < len(f.Coders) {
		progressed := false
		for ci, c := range f.Coders {
			if done[ci] || !f.inputsReady(inStart[ci], c.NumInStreams, available) {
				continue
			}
			done[ci] = true
			order = append(order, ci)
			for j := range c.NumOutStreams {
				available[outStart[ci]+j] = true
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("coder bindings form a cycle: %w", ErrMalformedFolder)
		}
	}
	return order, nil
}

func (f *Folder) inputsReady(start, n int, available []bool) bool {
	for in := start; in < start+n; in++ {
		if bp := f.findBindPairForIn(in); bp >= 0 && !available[f.BindPairs[bp].OutIndex] {
			return false
		}
	}
	return true
}

// decodeFolder runs the folder's coders over its packed streams and returns
// the sink output. packed holds one buffer per entry of PackedStreams.
//
// Encrypted folders need a password. Because a wrong key only shows up as
// garbage further down the chain, any coder failure in an encrypted folder
// is reported as ErrWrongPassword.
func decodeFolder(f *Folder, packed [][]byte, dec Decoder, password string) ([]byte, error) {
	order, err := f.plan()
	if err != nil {
		return nil, err
	}
	sink, _ := f.MainOutput()
	if len(packed) != len(f.PackedStreams) {
		return nil, fmt.Errorf("%d packed buffers for %d packed streams: %w",
			len(packed), len(f.PackedStreams), ErrMalformedFolder)
	}
	encrypted := f.Encrypted()
	if encrypted && password == "" {
		return nil, ErrNoPassword
	}

	inStart, outStart := f.streamStarts()
	outputs := make([][]byte, f.NumOutStreams())
	for _, ci := range order {
		c := f.Coders[ci]
		inputs := make([][]byte, c.NumInStreams)
		for j := range inputs {
			in := inStart[ci] + j
			if bp := f.findBindPairForIn(in); bp >= 0 {
				inputs[j] = outputs[f.BindPairs[bp].OutIndex]
			} else {
				inputs[j] = packed[f.findPackedStream(in)]
			}
		}
		req := codec.Request{
			Method:      c.Method,
			Properties:  c.Properties,
			Inputs:      inputs,
			OutputSizes: f.UnpackSizes[outStart[ci] : outStart[ci]+c.NumOutStreams],
			Password:    password,
		}
		outs, err := dec.Decode(req)
		if err != nil {
			if encrypted && !errors.Is(err, codec.ErrUnsupportedMethod) {
				return nil, fmt.Errorf("coder %d: %v: %w", ci, err, ErrWrongPassword)
			}
			return nil, fmt.Errorf("coder %d: %w", ci, err)
		}
		if len(outs) != c.NumOutStreams {
			return nil, fmt.Errorf("coder %d returned %d outputs, want %d: %w",
				ci, len(outs), c.NumOutStreams, ErrMalformedFolder)
		}
		copy(outputs[outStart[ci]:], outs)
	}

	out := outputs[sink]
	if uint64(len(out)) != f.UnpackSizes[sink] {
		err := fmt.Errorf("folder output is %d bytes, want %d: %w", len(out), f.UnpackSizes[sink], codec.ErrData)
		if encrypted {
			return nil, fmt.Errorf("%v: %w", err, ErrWrongPassword)
		}
		return nil, err
	}
	return out, nil
}
