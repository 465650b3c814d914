package rcnn

import (
	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// AnchorLabels holds the Bool flags of one labeling pass. Per-GT tensors are (Hf, Wf, K, G),
// per-anchor tensors are (Hf, Wf, K).
type AnchorLabels struct {
	PositivePerGT *tensor.Dense
	PositiveAnyGT *tensor.Dense
	NegativeAllGT *tensor.Dense
	NegativePerGT *tensor.Dense
	IgnoredPerGT  *tensor.Dense
}

// Grid returns (Hf, Wf, K).
func (l *AnchorLabels) Grid() (int, int, int) {
	s := l.PositiveAnyGT.Shape()
	return s[0], s[1], s[2]
}

func (l *AnchorLabels) NumGroundTruth() int {
	return l.PositivePerGT.Shape()[3]
}

// PositivePairs counts the positive (anchor, ground truth) pairs.
func (l *AnchorLabels) PositivePairs() int {
	return countTrue(processing.BoolData(l.PositivePerGT))
}

func (l *AnchorLabels) PositiveAnchors() int {
	return countTrue(processing.BoolData(l.PositiveAnyGT))
}

func (l *AnchorLabels) NegativeAnchors() int {
	return countTrue(processing.BoolData(l.NegativeAllGT))
}

func countTrue(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func checkAnchorGrid(anchors *tensor.Dense) error {
	if anchors == nil || anchors.Dims() != 4 || anchors.Shape()[3] != 4 {
		var shape tensor.Shape
		if anchors != nil {
			shape = anchors.Shape()
		}
		return errors.Wrapf(processing.ErrShapeMismatch, "expected anchors of shape (Hf,Wf,K,4), got %v", shape)
	}
	return nil
}

func newBools(data []bool, shape ...int) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Bool),
		tensor.WithShape(shape...),
		tensor.WithBacking(data),
	)
}

// AssignLabels flags every (anchor, ground truth) pair as positive, negative or ignored.
//
// anchors are corner boxes (Hf, Wf, K, 4), gt corner boxes (G, 4) with G >= 0, and mask an
// optional Bool (Hf, Wf, K) tensor that is true for anchors fully inside the image.
//
// A pair is positive when its IoU exceeds cfg.PositiveIoU, or when the anchor clears
// cfg.PositiveIoU for no ground truth and the pair ties the maximum IoU of its scope
// (the grid cell by default). Every tie is positive. An anchor is negative when it is
// positive for no ground truth and its IoU is below cfg.NegativeIoU for all of them, which
// holds vacuously when G is 0. Everything else is ignored.
func AssignLabels(anchors, gt, mask *tensor.Dense, cfg *config.LabelParams) (*AnchorLabels, error) {
	if err := checkAnchorGrid(anchors); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultLabelParams
	}
	shape := anchors.Shape()
	featH, featW, numK := shape[0], shape[1], shape[2]
	numAnchors := featH * featW * numK

	var maskData []bool
	if mask != nil {
		if mask.Dtype() != tensor.Bool || !mask.Shape().Eq(tensor.Shape{featH, featW, numK}) {
			return nil, errors.Wrapf(processing.ErrShapeMismatch,
				"expected a Bool cross-boundary mask of shape (%d,%d,%d), got %v %v", featH, featW, numK, mask.Dtype(), mask.Shape())
		}
		maskData = processing.BoolData(mask)
	}

	ious, err := processing.IoU(anchors, gt)
	if err != nil {
		return nil, err
	}
	numGT := gt.Shape()[0]
	iouData := ious.Float32s()

	maxIoU, err := scopedMaxIoU(iouData, featH*featW, numK, numGT, cfg.MaxIoUScope)
	if err != nil {
		return nil, err
	}

	positivePerGT := make([]bool, numAnchors*numGT)
	positiveAnyGT := make([]bool, numAnchors)
	negativeAllGT := make([]bool, numAnchors)
	negativePerGT := make([]bool, numAnchors*numGT)
	ignoredPerGT := make([]bool, numAnchors*numGT)

	for a := range numAnchors {
		row := iouData[a*numGT : (a+1)*numGT]
		cell := a / numK

		anyGreater := false
		allLess := true
		for _, iou := range row {
			if iou > cfg.PositiveIoU {
				anyGreater = true
			}
			if !(iou < cfg.NegativeIoU) {
				allLess = false
			}
		}

		inside := maskData == nil || maskData[a]
		for g, iou := range row {
			var best float32
			if cfg.MaxIoUScope == config.MaxIoUScopeGroundTruth {
				best = maxIoU[g]
			} else {
				best = maxIoU[cell]
			}
			positive := iou > cfg.PositiveIoU || (!anyGreater && iou == best)
			positive = positive && inside
			positivePerGT[a*numGT+g] = positive
			if positive {
				positiveAnyGT[a] = true
			}
		}

		negativeAllGT[a] = !positiveAnyGT[a] && allLess && inside
		for g := range numGT {
			negativePerGT[a*numGT+g] = negativeAllGT[a]
			ignoredPerGT[a*numGT+g] = !positivePerGT[a*numGT+g] && !negativeAllGT[a]
		}
	}

	return &AnchorLabels{
		PositivePerGT: newBools(positivePerGT, featH, featW, numK, numGT),
		PositiveAnyGT: newBools(positiveAnyGT, featH, featW, numK),
		NegativeAllGT: newBools(negativeAllGT, featH, featW, numK),
		NegativePerGT: newBools(negativePerGT, featH, featW, numK, numGT),
		IgnoredPerGT:  newBools(ignoredPerGT, featH, featW, numK, numGT),
	}, nil
}

// scopedMaxIoU returns the maximum IoU per grid cell (length numCells) or per ground
// truth (length numGT), depending on scope.
func scopedMaxIoU(ious []float32, numCells, numK, numGT int, scope config.MaxIoUScope) ([]float32, error) {
	switch scope {
	case config.MaxIoUScopeCell, "":
		maxIoU := make([]float32, numCells)
		block := numK * numGT
		if block == 0 {
			return maxIoU, nil
		}
		for c := range numCells {
			best := ious[c*block]
			for _, v := range ious[c*block+1 : (c+1)*block] {
				best = max(best, v)
			}
			maxIoU[c] = best
		}
		return maxIoU, nil
	case config.MaxIoUScopeGroundTruth:
		maxIoU := make([]float32, numGT)
		numAnchors := numCells * numK
		if numAnchors == 0 {
			return maxIoU, nil
		}
		copy(maxIoU, ious[:numGT])
		for a := 1; a < numAnchors; a++ {
			for g := range numGT {
				maxIoU[g] = max(maxIoU[g], ious[a*numGT+g])
			}
		}
		return maxIoU, nil
	default:
		return nil, errors.Errorf("unknown max IoU scope %q", scope)
	}
}
