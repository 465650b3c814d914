package rcnn

import (
	"context"
	"testing"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func newTensor(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(shape...),
		tensor.WithBacking(data),
	)
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float32{0}, linspace(1))
	assert.Equal(t, []float32{0, 1}, linspace(2))
	assert.InDeltaSlice(t, []float32{0, 0.25, 0.5, 0.75, 1}, linspace(5), 1e-6)
}

func TestAnchors_SingleCell(t *testing.T) {
	anchors, err := Anchors(1, 1, 600, 600, config.DefaultAnchorParams)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 9, 4}, []int(anchors.Shape()))

	data := anchors.Float32s()
	for k := range 9 {
		assert.Equal(t, float32(0), data[k*4], "cx of slot %d", k)
		assert.Equal(t, float32(0), data[k*4+1], "cy of slot %d", k)
	}
}

func TestAnchors_Grid(t *testing.T) {
	anchors, err := Anchors(5, 3, 600, 1200, config.DefaultAnchorParams)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 9, 4}, []int(anchors.Shape()))

	data := anchors.Float32s()
	at := func(row, col, k int) []float32 {
		o := ((row*3+col)*9 + k) * 4
		return data[o : o+4]
	}

	// Columns walk x, rows walk y.
	assert.InDeltaSlice(t, []float32{0.5, 0.25, 128.0 / 1200, 128.0 / 600}, at(1, 1, 0), 1e-6)
	assert.InDeltaSlice(t, []float32{1, 1, 512.0 / 1200, 1024.0 / 600}, at(4, 2, 8), 1e-6)
	// Slot 5 is the third scale of the second aspect ratio.
	assert.InDeltaSlice(t, []float32{0, 0, 512.0 / 1200, 256.0 / 600}, at(0, 0, 5), 1e-6)
}

func TestAnchors_Invalid(t *testing.T) {
	_, err := Anchors(0, 5, 600, 600, config.DefaultAnchorParams)
	assert.Error(t, err)

	_, err = Anchors(5, 5, 600, 0, config.DefaultAnchorParams)
	assert.Error(t, err)

	_, err = Anchors(5, 5, 600, 600, config.NewAnchorParams([]float32{}, []float32{1}))
	assert.Error(t, err)
}

func TestAnchorGenerator_Cache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryAnchorCache()
	gen := NewAnchorGenerator(config.DefaultAnchorParams, cache)

	first, err := gen.Anchors(ctx, 4, 6, 600, 900)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	second, err := gen.Anchors(ctx, 4, 6, 600, 900)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	_, err = gen.Anchors(ctx, 5, 6, 600, 900)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestAnchorGenerator_NoCache(t *testing.T) {
	gen := NewAnchorGenerator(config.DefaultAnchorParams, nil)
	anchors, err := gen.Anchors(context.Background(), 2, 2, 600, 600)
	require.NoError(t, err)

	direct, err := Anchors(2, 2, 600, 600, config.DefaultAnchorParams)
	require.NoError(t, err)
	assert.Equal(t, direct.Float32s(), anchors.Float32s())
}
