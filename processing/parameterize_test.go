package processing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestParameterize(t *testing.T) {
	boxes := newBoxes(0.6, 0.5, 0.4, 0.1)
	anchors := newBoxes(0.5, 0.5, 0.2, 0.2)

	params, err := Parameterize(boxes, anchors)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.5, 0, float32(math.Log(2)), float32(math.Log(0.5))}, params.Float32s(), 1e-5)
}

func TestParameterize_DegenerateBox(t *testing.T) {
	params, err := Parameterize(newBoxes(0.5, 0.5, 0, 0), newBoxes(0.5, 0.5, 0.2, 0.2))
	require.NoError(t, err)
	for _, v := range params.Float32s() {
		assert.False(t, math.IsInf(float64(v), 0))
		assert.False(t, math.IsNaN(float64(v)))
	}
	assert.Less(t, params.Float32s()[2], float32(-10))
}

func TestParameterize_ReconstructRoundTrip(t *testing.T) {
	boxes := newBoxes(
		0.31, 0.72, 0.2, 0.45,
		0.9, 0.1, 0.05, 0.6,
		0.5, 0.5, 1.3, 0.8,
	)
	anchors := newBoxes(
		0.25, 0.75, 0.3, 0.3,
		1, 0, 0.1, 0.2,
		0.5, 0.5, 0.9, 0.45,
	)

	params, err := Parameterize(boxes, anchors)
	require.NoError(t, err)

	back, err := Reconstruct(params, anchors)
	require.NoError(t, err)
	assert.InDeltaSlice(t, boxes.Float32s(), back.Float32s(), 1e-5)
}

func TestParameterize_ShapeMismatch(t *testing.T) {
	_, err := Parameterize(newBoxes(0, 0, 1, 1, 0, 0, 1, 1), newBoxes(0, 0, 1, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Reconstruct(newBoxes(0, 0, 1, 1), newBoxes(0, 0, 1, 1, 0, 0, 1, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestParameterizeGroundTruth(t *testing.T) {
	anchors := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, 2, 1, 4),
		tensor.WithBacking([]float32{
			0.5, 0.5, 0.2, 0.2,
			0.25, 0.25, 0.5, 0.5,
		}),
	)
	gt := newBoxes(
		0.5, 0.5, 0.2, 0.2,
		0.25, 0.25, 0.5, 0.5,
		0.75, 0.5, 0.4, 0.1,
	)

	params, err := ParameterizeGroundTruth(gt, anchors)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 3, 4}, []int(params.Shape()))

	data := params.Float32s()
	// ground truth 0 coincides with anchor 0
	assert.InDeltaSlice(t, []float32{0, 0, 0, 0}, data[0:4], 1e-5)
	// ground truth 1 coincides with anchor 1
	assert.InDeltaSlice(t, []float32{0, 0, 0, 0}, data[16:20], 1e-5)

	// every slice matches the pairwise parameterization
	single, err := Parameterize(newBoxes(0.75, 0.5, 0.4, 0.1), newBoxes(0.25, 0.25, 0.5, 0.5))
	require.NoError(t, err)
	assert.InDeltaSlice(t, single.Float32s(), data[20:24], 1e-6)
}

func TestParameterizeGroundTruth_Empty(t *testing.T) {
	anchors := newBoxes(0.5, 0.5, 0.2, 0.2)
	gt := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(0, 4), tensor.WithBacking([]float32{}))

	params, err := ParameterizeGroundTruth(gt, anchors)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 4}, []int(params.Shape()))
}
