package modules

import (
	"context"

	"github.com/okieraised/go-fasterrcnn/rcnn"
	"github.com/okieraised/go-fasterrcnn/utils"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

type TargetAssignmentClient struct {
	*rcnn.TargetParams
	anchors *rcnn.AnchorGenerator
}

func NewTargetAssignmentClient(anchors *rcnn.AnchorGenerator, params *rcnn.TargetParams) *TargetAssignmentClient {
	if params == nil {
		params = rcnn.DefaultTargetParams
	}
	return &TargetAssignmentClient{
		TargetParams: params,
		anchors:      anchors,
	}
}

// Infer labels the anchors of the RPN grid against the ground truth corner boxes (G, 4),
// samples a minibatch and computes the RPN losses. A nil seed samples from a time seeded source.
func (c *TargetAssignmentClient) Infer(ctx context.Context, fm *FeatureMap, rpn *RPNOutput, gtBoxes *tensor.Dense, gtLabels []int, seed *int64) (*rcnn.RPNTargets, error) {
	shape := rpn.Reg.Shape()
	anchors, err := c.anchors.Anchors(ctx, shape[0], shape[1], fm.ImageHeight, fm.ImageWidth)
	if err != nil {
		return nil, err
	}

	targets, err := rcnn.BuildRPNTargets(anchors, gtBoxes, gtLabels, rpn.Reg, rpn.Cls, c.TargetParams, rcnn.NewSamplerRand(seed))
	if err != nil {
		return nil, err
	}

	utils.Logger.Debug("assigned rpn targets",
		zap.Int("positive_pairs", targets.Labels.PositivePairs()),
		zap.Int("negative_anchors", targets.Labels.NegativeAnchors()),
		zap.Int("sampled_positive", targets.Batch.PositiveCount),
		zap.Int("sampled_negative", targets.Batch.NegativeCount),
	)
	return targets, nil
}
