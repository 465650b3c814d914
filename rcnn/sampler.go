package rcnn

import (
	"math/rand"
	"time"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NoGroundTruth is the ground truth index carried by negative samples.
const NoGroundTruth = -1

// SampleIndex locates one sampled anchor, and for positives the ground truth it matched.
type SampleIndex struct {
	Row int
	Col int
	K   int
	GT  int
}

// Minibatch is one sampled set of anchors. Indices lists the PositiveCount positives first,
// followed by NegativeCount negatives. PredictedParams and TargetParams are (PositiveCount, 4).
type Minibatch struct {
	Indices         []SampleIndex
	PredictedParams *tensor.Dense
	TargetParams    *tensor.Dense
	PositiveCount   int
	NegativeCount   int
}

func (m *Minibatch) Positives() []SampleIndex {
	return m.Indices[:m.PositiveCount]
}

func (m *Minibatch) Negatives() []SampleIndex {
	return m.Indices[m.PositiveCount:]
}

// NewSamplerRand returns a source seeded with seed, or with the current time when seed is nil.
func NewSamplerRand(seed *int64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// SampleMinibatch draws up to cfg.DesiredPositive positive (anchor, ground truth) pairs and
// fills the rest of cfg.DesiredTotal with distinct negative anchors, uniformly and without
// replacement. When negatives run short the batch is smaller than cfg.DesiredTotal.
//
// regParams is the parameterized network regression (Hf, Wf, K, 4) and gtParams the
// parameterized ground truth (Hf, Wf, K, G, 4).
func SampleMinibatch(labels *AnchorLabels, regParams, gtParams *tensor.Dense, cfg *config.SamplerParams, rng *rand.Rand) (*Minibatch, error) {
	if cfg == nil {
		cfg = config.DefaultSamplerParams
	}
	if cfg.DesiredPositive < 0 || cfg.DesiredTotal < cfg.DesiredPositive {
		return nil, errors.Errorf("invalid sampler sizes: %d positive of %d total", cfg.DesiredPositive, cfg.DesiredTotal)
	}
	if rng == nil {
		return nil, errors.New("sampler needs a random source")
	}

	featH, featW, numK := labels.Grid()
	numGT := labels.NumGroundTruth()
	if !regParams.Shape().Eq(tensor.Shape{featH, featW, numK, 4}) {
		return nil, errors.Wrapf(processing.ErrShapeMismatch,
			"expected regression params of shape (%d,%d,%d,4), got %v", featH, featW, numK, regParams.Shape())
	}
	if !gtParams.Shape().Eq(tensor.Shape{featH, featW, numK, numGT, 4}) {
		return nil, errors.Wrapf(processing.ErrShapeMismatch,
			"expected ground truth params of shape (%d,%d,%d,%d,4), got %v", featH, featW, numK, numGT, gtParams.Shape())
	}

	positivePool := make([]int, 0)
	for i, f := range processing.BoolData(labels.PositivePerGT) {
		if f {
			positivePool = append(positivePool, i)
		}
	}
	negativePool := make([]int, 0)
	for a, f := range processing.BoolData(labels.NegativeAllGT) {
		if f {
			negativePool = append(negativePool, a)
		}
	}

	posCount := min(cfg.DesiredPositive, len(positivePool))
	negCount := min(cfg.DesiredTotal-posCount, len(negativePool))

	rng.Shuffle(len(positivePool), func(i, j int) {
		positivePool[i], positivePool[j] = positivePool[j], positivePool[i]
	})
	rng.Shuffle(len(negativePool), func(i, j int) {
		negativePool[i], negativePool[j] = negativePool[j], negativePool[i]
	})

	locate := func(a int) (int, int, int) {
		return a / (featW * numK), (a / numK) % featW, a % numK
	}

	regData := processing.Float32Data(regParams)
	gtData := processing.Float32Data(gtParams)

	indices := make([]SampleIndex, 0, posCount+negCount)
	predicted := make([]float32, 0, posCount*4)
	target := make([]float32, 0, posCount*4)
	for _, pair := range positivePool[:posCount] {
		a, g := pair/numGT, pair%numGT
		row, col, k := locate(a)
		indices = append(indices, SampleIndex{Row: row, Col: col, K: k, GT: g})
		predicted = append(predicted, regData[a*4:a*4+4]...)
		target = append(target, gtData[pair*4:pair*4+4]...)
	}
	for _, a := range negativePool[:negCount] {
		row, col, k := locate(a)
		indices = append(indices, SampleIndex{Row: row, Col: col, K: k, GT: NoGroundTruth})
	}

	return &Minibatch{
		Indices: indices,
		PredictedParams: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(posCount, 4),
			tensor.WithBacking(predicted),
		),
		TargetParams: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(posCount, 4),
			tensor.WithBacking(target),
		),
		PositiveCount: posCount,
		NegativeCount: negCount,
	}, nil
}
