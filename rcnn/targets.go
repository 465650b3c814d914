package rcnn

import (
	"math/rand"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

type TargetParams struct {
	Label   *config.LabelParams
	Sampler *config.SamplerParams
	Loss    *config.LossParams
}

var DefaultTargetParams = &TargetParams{
	Label:   config.DefaultLabelParams,
	Sampler: config.DefaultSamplerParams,
	Loss:    config.DefaultLossParams,
}

// withDefaults fills every unset parameter group from the package defaults.
func (p *TargetParams) withDefaults() *TargetParams {
	if p == nil {
		return DefaultTargetParams
	}
	filled := *p
	if filled.Label == nil {
		filled.Label = config.DefaultLabelParams
	}
	if filled.Sampler == nil {
		filled.Sampler = config.DefaultSamplerParams
	}
	if filled.Loss == nil {
		filled.Loss = config.DefaultLossParams
	}
	return &filled
}

// RPNTargets is everything one labeling and sampling pass produces for a single image.
type RPNTargets struct {
	Labels *AnchorLabels
	Batch  *Minibatch
	// RoIs are the predicted corner boxes of the sampled positives, in batch order.
	RoIs         *tensor.Dense
	ClassTargets []int
	RegLoss      float32
	ClsLoss      float32
}

// BuildRPNTargets labels the anchors against the ground truth, samples a minibatch and
// computes the RPN losses.
//
// anchors and reg are center boxes (Hf, Wf, K, 4), cls the objectness probabilities
// (Hf, Wf, K, 2), gt corner boxes (G, 4) with one label per box.
func BuildRPNTargets(anchors, gt *tensor.Dense, gtLabels []int, reg, cls *tensor.Dense, params *TargetParams, rng *rand.Rand) (*RPNTargets, error) {
	params = params.withDefaults()
	if err := checkAnchorGrid(anchors); err != nil {
		return nil, err
	}
	grid := anchors.Shape().Clone()
	if !reg.Shape().Eq(grid) {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "regression output %v does not match anchors %v", reg.Shape(), grid)
	}
	if !cls.Shape().Eq(tensor.Shape{grid[0], grid[1], grid[2], 2}) {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "objectness output %v does not match anchors %v", cls.Shape(), grid)
	}
	if gt.Dims() != 2 || gt.Shape()[1] != 4 {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "expected ground truth of shape (G,4), got %v", gt.Shape())
	}
	if gt.Shape()[0] != len(gtLabels) {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "%d ground truth boxes but %d labels", gt.Shape()[0], len(gtLabels))
	}

	anchorCorners, err := processing.CenterToCorner(anchors)
	if err != nil {
		return nil, err
	}

	var mask *tensor.Dense
	if params.Label.UseCrossBoundaryMask {
		mask, err = processing.CrossBoundaryMask(anchorCorners)
		if err != nil {
			return nil, err
		}
	}

	labels, err := AssignLabels(anchorCorners, gt, mask, params.Label)
	if err != nil {
		return nil, err
	}

	regParams, err := processing.Parameterize(reg, anchors)
	if err != nil {
		return nil, err
	}
	gtCenters, err := processing.CornerToCenter(gt)
	if err != nil {
		return nil, err
	}
	gtParams, err := processing.ParameterizeGroundTruth(gtCenters, anchors)
	if err != nil {
		return nil, err
	}

	batch, err := SampleMinibatch(labels, regParams, gtParams, params.Sampler, rng)
	if err != nil {
		return nil, err
	}

	classTargets, err := ClassTargets(batch, gtLabels)
	if err != nil {
		return nil, err
	}

	regLoss, err := RegressionLoss(batch.PredictedParams, batch.TargetParams, params.Loss.HuberDelta)
	if err != nil {
		return nil, err
	}
	clsLoss, err := ClassificationLoss(cls, batch)
	if err != nil {
		return nil, err
	}

	rois, err := positiveRoIs(reg, batch)
	if err != nil {
		return nil, err
	}

	return &RPNTargets{
		Labels:       labels,
		Batch:        batch,
		RoIs:         rois,
		ClassTargets: classTargets,
		RegLoss:      regLoss,
		ClsLoss:      clsLoss,
	}, nil
}

func positiveRoIs(reg *tensor.Dense, batch *Minibatch) (*tensor.Dense, error) {
	shape := reg.Shape()
	featW, numK := shape[1], shape[2]
	data := processing.Float32Data(reg)

	boxes := make([]float32, 0, batch.PositiveCount*4)
	for _, idx := range batch.Positives() {
		a := (idx.Row*featW+idx.Col)*numK + idx.K
		boxes = append(boxes, data[a*4:a*4+4]...)
	}

	return processing.CenterToCorner(tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(batch.PositiveCount, 4),
		tensor.WithBacking(boxes),
	))
}
