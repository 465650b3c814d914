package modules

import (
	"context"
	"testing"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/okieraised/go-fasterrcnn/rcnn"
	"github.com/okieraised/go-fasterrcnn/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformRPNOutput(t *testing.T, anchors []float32, featH, featW, numK int) *RPNOutput {
	t.Helper()
	cls := make([]float32, featH*featW*numK*2)
	for i := range cls {
		cls[i] = 0.5
	}
	return &RPNOutput{
		Reg: newTensor(append([]float32{}, anchors...), featH, featW, numK, 4),
		Cls: newTensor(cls, featH, featW, numK, 2),
	}
}

func TestTargetAssignmentClient_Infer(t *testing.T) {
	ctx := context.Background()
	cache := rcnn.NewMemoryAnchorCache()
	generator := rcnn.NewAnchorGenerator(config.DefaultAnchorParams, cache)

	anchors, err := generator.Anchors(ctx, 4, 4, 800, 800)
	require.NoError(t, err)
	corners, err := processing.CenterToCorner(anchors)
	require.NoError(t, err)

	// Ground truth on anchor (1, 2, 4).
	a := (1*4+2)*9 + 4
	gt := newTensor(append([]float32{}, corners.Float32s()[a*4:a*4+4]...), 1, 4)

	client := NewTargetAssignmentClient(generator, &rcnn.TargetParams{
		Label:   config.NewLabelParams(0.7, 0.3, false, config.MaxIoUScopeGroundTruth),
		Sampler: config.DefaultSamplerParams,
		Loss:    config.DefaultLossParams,
	})
	fm := &FeatureMap{
		Features:    newTensor(make([]float32, 4*4*2), 1, 4, 4, 2),
		ImageHeight: 800,
		ImageWidth:  800,
	}

	targets, err := client.Infer(ctx, fm, uniformRPNOutput(t, anchors.Float32s(), 4, 4, 9), gt, []int{7}, utils.RefPointer(int64(5)))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	require.Equal(t, 1, targets.Batch.PositiveCount)
	assert.Equal(t, rcnn.SampleIndex{Row: 1, Col: 2, K: 4, GT: 0}, targets.Batch.Positives()[0])
	assert.Equal(t, []int{7}, targets.ClassTargets)
	assert.InDeltaSlice(t, gt.Float32s(), targets.RoIs.Float32s(), 1e-6)
	assert.LessOrEqual(t, targets.Batch.PositiveCount+targets.Batch.NegativeCount, 256)
}

func TestTargetAssignmentClient_DefaultParams(t *testing.T) {
	client := NewTargetAssignmentClient(rcnn.NewAnchorGenerator(config.DefaultAnchorParams, nil), nil)
	assert.Same(t, rcnn.DefaultTargetParams, client.TargetParams)
}
