package rcnn

import (
	"testing"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/okieraised/go-fasterrcnn/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticLabels builds labels over a (1, n, 1) grid with one ground truth, where the first
// numPos anchors are positive and the next numNeg negative.
func syntheticLabels(n, numPos, numNeg int) *AnchorLabels {
	pos := make([]bool, n)
	neg := make([]bool, n)
	ign := make([]bool, n)
	for i := range n {
		switch {
		case i < numPos:
			pos[i] = true
		case i < numPos+numNeg:
			neg[i] = true
		default:
			ign[i] = true
		}
	}
	return &AnchorLabels{
		PositivePerGT: newBools(pos, 1, n, 1, 1),
		PositiveAnyGT: newBools(append([]bool{}, pos...), 1, n, 1),
		NegativeAllGT: newBools(neg, 1, n, 1),
		NegativePerGT: newBools(append([]bool{}, neg...), 1, n, 1, 1),
		IgnoredPerGT:  newBools(ign, 1, n, 1, 1),
	}
}

// syntheticParams numbers every anchor so sampled rows can be traced back to their anchor.
func syntheticParams(n int) (reg, gt []float32) {
	reg = make([]float32, n*4)
	gt = make([]float32, n*4)
	for a := range n {
		for c := range 4 {
			reg[a*4+c] = float32(a)
			gt[a*4+c] = float32(-a)
		}
	}
	return reg, gt
}

func sample(t *testing.T, n, numPos, numNeg int, seed int64) *Minibatch {
	t.Helper()
	reg, gt := syntheticParams(n)
	batch, err := SampleMinibatch(
		syntheticLabels(n, numPos, numNeg),
		newTensor(reg, 1, n, 1, 4),
		newTensor(gt, 1, n, 1, 1, 4),
		config.DefaultSamplerParams,
		NewSamplerRand(utils.RefPointer(seed)),
	)
	require.NoError(t, err)
	return batch
}

func TestSampleMinibatch_Counts(t *testing.T) {
	tests := []struct {
		name    string
		numPos  int
		numNeg  int
		wantPos int
		wantNeg int
	}{
		{"positives capped", 300, 400, 128, 128},
		{"few positives", 10, 500, 10, 246},
		{"few negatives", 10, 5, 10, 5},
		{"nothing to sample", 0, 0, 0, 0},
		{"negatives only", 0, 300, 0, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := sample(t, 800, tt.numPos, tt.numNeg, 42)
			assert.Equal(t, tt.wantPos, batch.PositiveCount)
			assert.Equal(t, tt.wantNeg, batch.NegativeCount)
			assert.Len(t, batch.Indices, tt.wantPos+tt.wantNeg)
			assert.LessOrEqual(t, len(batch.Indices), 256)
			assert.Equal(t, []int{tt.wantPos, 4}, []int(batch.PredictedParams.Shape()))
			assert.Equal(t, []int{tt.wantPos, 4}, []int(batch.TargetParams.Shape()))
		})
	}
}

func TestSampleMinibatch_Membership(t *testing.T) {
	batch := sample(t, 800, 300, 400, 1)

	seen := make(map[int]bool)
	for _, idx := range batch.Positives() {
		assert.Less(t, idx.Col, 300)
		assert.Equal(t, 0, idx.GT)
		assert.False(t, seen[idx.Col], "anchor %d sampled twice", idx.Col)
		seen[idx.Col] = true
	}
	for _, idx := range batch.Negatives() {
		assert.GreaterOrEqual(t, idx.Col, 300)
		assert.Less(t, idx.Col, 700)
		assert.Equal(t, NoGroundTruth, idx.GT)
		assert.False(t, seen[idx.Col], "anchor %d sampled twice", idx.Col)
		seen[idx.Col] = true
	}

	predicted := batch.PredictedParams.Float32s()
	target := batch.TargetParams.Float32s()
	for i, idx := range batch.Positives() {
		assert.Equal(t, float32(idx.Col), predicted[i*4])
		assert.Equal(t, float32(-idx.Col), target[i*4+3])
	}
}

func TestSampleMinibatch_Deterministic(t *testing.T) {
	a := sample(t, 800, 300, 400, 99)
	b := sample(t, 800, 300, 400, 99)
	assert.Equal(t, a.Indices, b.Indices)
	assert.Equal(t, a.PredictedParams.Float32s(), b.PredictedParams.Float32s())
}

func TestSampleMinibatch_Invalid(t *testing.T) {
	labels := syntheticLabels(4, 1, 1)
	reg, gt := syntheticParams(4)

	_, err := SampleMinibatch(labels, newTensor(reg, 1, 4, 1, 4), newTensor(gt, 1, 4, 1, 1, 4), nil, nil)
	assert.Error(t, err)

	_, err = SampleMinibatch(labels, newTensor(reg, 4, 4), newTensor(gt, 1, 4, 1, 1, 4), nil, NewSamplerRand(nil))
	assert.True(t, errors.Is(err, processing.ErrShapeMismatch))

	_, err = SampleMinibatch(labels, newTensor(reg, 1, 4, 1, 4), newTensor(gt, 1, 4, 1, 1, 4), config.NewSamplerParams(10, 20), NewSamplerRand(nil))
	assert.Error(t, err)
}

func TestSampleMinibatch_PairsAcrossGroundTruths(t *testing.T) {
	// Grid (1, 3, 1) against two boxes: anchor 0 matches box 1, anchor 1 matches both,
	// anchor 2 is negative.
	const n, numGT = 3, 2
	labels := &AnchorLabels{
		PositivePerGT: newBools([]bool{false, true, true, true, false, false}, 1, n, 1, numGT),
		PositiveAnyGT: newBools([]bool{true, true, false}, 1, n, 1),
		NegativeAllGT: newBools([]bool{false, false, true}, 1, n, 1),
		NegativePerGT: newBools([]bool{false, false, false, false, true, true}, 1, n, 1, numGT),
		IgnoredPerGT:  newBools(make([]bool, n*numGT), 1, n, 1, numGT),
	}
	reg := make([]float32, n*4)
	gt := make([]float32, n*numGT*4)
	for a := range n {
		for c := range 4 {
			reg[a*4+c] = float32(a)
			for g := range numGT {
				gt[(a*numGT+g)*4+c] = float32(10*a + g)
			}
		}
	}

	batch, err := SampleMinibatch(labels, newTensor(reg, 1, n, 1, 4), newTensor(gt, 1, n, 1, numGT, 4),
		config.DefaultSamplerParams, NewSamplerRand(utils.RefPointer(int64(2))))
	require.NoError(t, err)

	require.Equal(t, 3, batch.PositiveCount)
	assert.Equal(t, 1, batch.NegativeCount)
	assert.ElementsMatch(t, []SampleIndex{
		{Row: 0, Col: 0, K: 0, GT: 1},
		{Row: 0, Col: 1, K: 0, GT: 0},
		{Row: 0, Col: 1, K: 0, GT: 1},
	}, batch.Positives())
	assert.Equal(t, []SampleIndex{{Row: 0, Col: 2, K: 0, GT: NoGroundTruth}}, batch.Negatives())

	predicted := batch.PredictedParams.Float32s()
	target := batch.TargetParams.Float32s()
	for i, idx := range batch.Positives() {
		want := float32(10*idx.Col + idx.GT)
		assert.Equal(t, []float32{want, want, want, want}, target[i*4:i*4+4])
		got := float32(idx.Col)
		assert.Equal(t, []float32{got, got, got, got}, predicted[i*4:i*4+4])
	}
}
