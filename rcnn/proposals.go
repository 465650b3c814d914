package rcnn

import (
	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/okieraised/go-fasterrcnn/utils"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

type Proposals struct {
	// Boxes are clipped corner boxes (N, 4), Scores their objectness (N,).
	Boxes         *tensor.Dense
	Scores        *tensor.Dense
	AnchorIndices []int
}

func (p *Proposals) Len() int {
	return p.Boxes.Shape()[0]
}

type Detections struct {
	Boxes  *tensor.Dense
	Labels []int
	Scores []float32
}

func (d *Detections) Len() int {
	return len(d.Labels)
}

// GenerateProposals ranks the RPN outputs by objectness (cls[..., 0]), keeps the top
// cfg.PreNMSTopK, clips their predicted boxes to the image and suppresses overlaps above
// cfg.NMSThreshold, keeping at most cfg.PostNMSTopK.
func GenerateProposals(reg, cls *tensor.Dense, cfg *config.ProposalParams) (*Proposals, error) {
	if cfg == nil {
		cfg = config.DefaultProposalParams
	}
	if err := checkAnchorGrid(reg); err != nil {
		return nil, err
	}
	shape := reg.Shape()
	if !cls.Shape().Eq(tensor.Shape{shape[0], shape[1], shape[2], 2}) {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "objectness output %v does not match regression %v", cls.Shape(), shape)
	}
	numAnchors := shape[0] * shape[1] * shape[2]

	clsData := processing.Float32Data(cls)
	objectness := make([]float32, numAnchors)
	for a := range numAnchors {
		objectness[a] = clsData[a*2]
	}

	order, err := utils.ArgSortDescending(tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(numAnchors),
		tensor.WithBacking(objectness),
	))
	if err != nil {
		return nil, err
	}
	if cfg.PreNMSTopK > 0 && len(order) > cfg.PreNMSTopK {
		order = order[:cfg.PreNMSTopK]
	}

	flatReg := tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(numAnchors, 4),
		tensor.WithBacking(processing.Float32Data(reg)),
	)
	candidates, err := utils.SelectRows2D(flatReg, order)
	if err != nil {
		return nil, err
	}
	corners, err := processing.CenterToCorner(candidates)
	if err != nil {
		return nil, err
	}
	clipped, err := processing.ClipBoxes(corners)
	if err != nil {
		return nil, err
	}

	candidateScores := make([]float32, len(order))
	for i, a := range order {
		candidateScores[i] = objectness[a]
	}

	keep, err := processing.NMS(clipped, tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(order)),
		tensor.WithBacking(candidateScores),
	), cfg.NMSThreshold, cfg.PostNMSTopK)
	if err != nil {
		return nil, err
	}

	boxes, err := utils.SelectRows2D(clipped, keep)
	if err != nil {
		return nil, err
	}
	scores := make([]float32, len(keep))
	anchorIndices := make([]int, len(keep))
	for i, k := range keep {
		scores[i] = candidateScores[k]
		anchorIndices[i] = order[k]
	}

	return &Proposals{
		Boxes: boxes,
		Scores: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(len(keep)),
			tensor.WithBacking(scores),
		),
		AnchorIndices: anchorIndices,
	}, nil
}

// SelectDetections labels every box with its most probable class and keeps at most
// cfg.MaxDetections after suppressing overlaps above cfg.DetectionNMSThreshold.
// boxes are corner boxes (N, 4) and classProbs the head's probabilities (N, C).
func SelectDetections(boxes, classProbs *tensor.Dense, cfg *config.ProposalParams) (*Detections, error) {
	if cfg == nil {
		cfg = config.DefaultProposalParams
	}
	if boxes.Dims() != 2 || classProbs.Dims() != 2 || boxes.Shape()[0] != classProbs.Shape()[0] {
		return nil, errors.Wrapf(processing.ErrShapeMismatch, "boxes %v and class probabilities %v differ", boxes.Shape(), classProbs.Shape())
	}
	if boxes.Shape()[0] == 0 {
		return &Detections{
			Boxes:  boxes,
			Labels: []int{},
			Scores: []float32{},
		}, nil
	}

	labels, scores, err := utils.ArgMax(classProbs)
	if err != nil {
		return nil, err
	}

	keep, err := processing.NMS(boxes, tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(scores)),
		tensor.WithBacking(scores),
	), cfg.DetectionNMSThreshold, cfg.MaxDetections)
	if err != nil {
		return nil, err
	}

	keptBoxes, err := utils.SelectRows2D(boxes, keep)
	if err != nil {
		return nil, err
	}
	keptLabels := make([]int, len(keep))
	keptScores := make([]float32, len(keep))
	for i, k := range keep {
		keptLabels[i] = labels[k]
		keptScores[i] = scores[k]
	}

	return &Detections{
		Boxes:  keptBoxes,
		Labels: keptLabels,
		Scores: keptScores,
	}, nil
}
