package utils

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/x448/float16"
	"gorgonia.org/tensor"
)

func RefPointer[T any](v T) *T {
	return &v
}

func DerefPointer[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ArgSortDescending returns the indices of a 1D tensor ordered by decreasing value.
// Equal values keep their original order.
func ArgSortDescending(t *tensor.Dense) ([]int, error) {
	shape := t.Shape()
	if len(shape) != 1 {
		return nil, fmt.Errorf("expected a 1D tensor, got shape %v", shape)
	}

	data := float32s(t)

	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}

	sort.SliceStable(indices, func(i, j int) bool {
		return data[indices[i]] > data[indices[j]]
	})

	return indices, nil
}

func SelectRows2D(t *tensor.Dense, indices []int) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected a 2D tensor, got shape %v", shape)
	}
	numRows, numCols := shape[0], shape[1]
	data := float32s(t)

	selectedData := make([]float32, 0, len(indices)*numCols)
	for _, idx := range indices {
		if idx < 0 || idx >= numRows {
			return nil, fmt.Errorf("index %d is out of bounds", idx)
		}
		selectedData = append(selectedData, data[idx*numCols:(idx+1)*numCols]...)
	}

	selectedTensor := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(indices), numCols),
		tensor.WithBacking(selectedData),
	)

	return selectedTensor, nil
}

// ArgMax returns, for every row of a 2D tensor, the column of the largest value and that value.
func ArgMax(t *tensor.Dense) ([]int, []float32, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, nil, fmt.Errorf("expected a 2D tensor, got shape %v", shape)
	}
	numRows, numCols := shape[0], shape[1]
	if numCols == 0 {
		return nil, nil, fmt.Errorf("cannot take argmax over zero columns")
	}
	data := float32s(t)

	idxs := make([]int, numRows)
	vals := make([]float32, numRows)
	for r := range numRows {
		row := data[r*numCols : (r+1)*numCols]
		best := 0
		for c := 1; c < numCols; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		idxs[r] = best
		vals[r] = row[best]
	}
	return idxs, vals, nil
}

// BytesToT32 decodes little-endian 4-byte values as returned in Triton raw output contents.
func BytesToT32[T float32 | int32 | uint32](b []byte) []T {
	out := make([]T, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		var v T
		switch p := any(&v).(type) {
		case *float32:
			*p = math.Float32frombits(bits)
		case *int32:
			*p = int32(bits)
		case *uint32:
			*p = bits
		}
		out[i] = v
	}
	return out
}

// FP16BytesToFloat32 decodes little-endian IEEE half precision values.
func FP16BytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(b[i*2:])).Float32()
	}
	return out
}

// DecodeRawOutput decodes a Triton raw output according to its datatype string ("FP32", "FP16").
func DecodeRawOutput(datatype string, raw []byte) ([]float32, error) {
	switch datatype {
	case "FP32":
		return BytesToT32[float32](raw), nil
	case "FP16":
		return FP16BytesToFloat32(raw), nil
	default:
		return nil, fmt.Errorf("unsupported output datatype %s", datatype)
	}
}

func float32s(t *tensor.Dense) []float32 {
	if t.IsView() {
		t = t.Materialize().(*tensor.Dense)
	}
	return t.Float32s()
}
