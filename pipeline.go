package go_fasterrcnn

import (
	"context"
	"time"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/modules"
	"github.com/okieraised/go-fasterrcnn/rcnn"
	"github.com/okieraised/go-fasterrcnn/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

type FeatureExtractor interface {
	Infer(img gocv.Mat) (*modules.FeatureMap, error)
}

type RegionProposer interface {
	Infer(fm *modules.FeatureMap) (*modules.RPNOutput, error)
}

type HeadClassifier interface {
	Infer(fm *modules.FeatureMap, rois *tensor.Dense) (*tensor.Dense, error)
}

type Models struct {
	Backbone       FeatureExtractor
	RPNHead        RegionProposer
	HeadClassifier HeadClassifier
}

// NewTritonModels connects the three networks hosted on a Triton server.
func NewTritonModels(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.Config) (*Models, error) {
	backbone, err := modules.NewFeatureExtractionClient(tritonClient, &cfg.Backbone)
	if err != nil {
		return nil, err
	}
	rpnHead, err := modules.NewRegionProposalClient(tritonClient, &cfg.RPNHead, &cfg.Anchor)
	if err != nil {
		return nil, err
	}
	head, err := modules.NewHeadClassificationClient(tritonClient, &cfg.HeadClassifier)
	if err != nil {
		return nil, err
	}

	return &Models{
		Backbone:       backbone,
		RPNHead:        rpnHead,
		HeadClassifier: head,
	}, nil
}

type LossResult struct {
	rcnn.Losses
	PositiveCount int `json:"positive_count"`
	NegativeCount int `json:"negative_count"`
}

type LossPipeline struct {
	models           *Models
	targetAssignment *modules.TargetAssignmentClient
	lossParams       *config.LossParams
}

func NewLossPipeline(models *Models, cfg *config.Config, cache rcnn.AnchorCache) *LossPipeline {
	generator := rcnn.NewAnchorGenerator(&cfg.Anchor, cache)
	params := &rcnn.TargetParams{
		Label:   &cfg.Label,
		Sampler: &cfg.Sampler,
		Loss:    &cfg.Loss,
	}

	return &LossPipeline{
		models:           models,
		targetAssignment: modules.NewTargetAssignmentClient(generator, params),
		lossParams:       &cfg.Loss,
	}
}

// ComputeLosses evaluates the RPN and head losses of one image against its ground truth
// corner boxes (G, 4) and labels. A nil seed samples the minibatch from a time seeded source.
func (c *LossPipeline) ComputeLosses(ctx context.Context, img gocv.Mat, gtBoxes *tensor.Dense, gtLabels []int, seed *int64) (*LossResult, error) {
	start := time.Now()

	fm, err := c.models.Backbone.Infer(img)
	if err != nil {
		return nil, err
	}
	rpn, err := c.models.RPNHead.Infer(fm)
	if err != nil {
		return nil, err
	}

	targets, err := c.targetAssignment.Infer(ctx, fm, rpn, gtBoxes, gtLabels, seed)
	if err != nil {
		return nil, err
	}

	var headLoss float32
	if targets.Batch.PositiveCount > 0 {
		classProbs, err := c.models.HeadClassifier.Infer(fm, targets.RoIs)
		if err != nil {
			return nil, err
		}
		headLoss, err = rcnn.HeadLoss(classProbs, targets.ClassTargets)
		if err != nil {
			return nil, err
		}
	}

	losses := rcnn.CombineLosses(targets.RegLoss, targets.ClsLoss, headLoss, c.lossParams)
	utils.Logger.Debug("computed losses",
		zap.Float32("rpn_loss", losses.RPNLoss),
		zap.Float32("head_loss", losses.HeadLoss),
		zap.Float32("total_loss", losses.TotalLoss),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &LossResult{
		Losses:        losses,
		PositiveCount: targets.Batch.PositiveCount,
		NegativeCount: targets.Batch.NegativeCount,
	}, nil
}

type DetectionPipeline struct {
	models            *Models
	proposalSelection *modules.ProposalSelectionClient
	detectionOutput   *modules.DetectionOutputClient
}

func NewDetectionPipeline(models *Models, cfg *config.Config, classNames []string) *DetectionPipeline {
	return &DetectionPipeline{
		models:            models,
		proposalSelection: modules.NewProposalSelectionClient(&cfg.Proposal),
		detectionOutput:   modules.NewDetectionOutputClient(&cfg.Proposal, classNames),
	}
}

// Detect returns the objects found in img, best first.
func (c *DetectionPipeline) Detect(img gocv.Mat) ([]modules.Detection, error) {
	start := time.Now()

	fm, err := c.models.Backbone.Infer(img)
	if err != nil {
		return nil, err
	}
	rpn, err := c.models.RPNHead.Infer(fm)
	if err != nil {
		return nil, err
	}

	proposals, err := c.proposalSelection.Infer(rpn)
	if err != nil {
		return nil, err
	}
	if proposals.Len() == 0 {
		return []modules.Detection{}, nil
	}

	classProbs, err := c.models.HeadClassifier.Infer(fm, proposals.Boxes)
	if err != nil {
		return nil, err
	}
	detections, err := c.detectionOutput.Infer(proposals.Boxes, classProbs)
	if err != nil {
		return nil, err
	}

	utils.Logger.Debug("detected objects",
		zap.Int("proposals", proposals.Len()),
		zap.Int("detections", len(detections)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return detections, nil
}
