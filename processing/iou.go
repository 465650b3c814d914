package processing

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// BoxIoU is the intersection over union of two corner boxes, 0 when they do not overlap.
func BoxIoU(a, b []float32) float32 {
	ih := min(a[2], b[2]) - max(a[0], b[0])
	iw := min(a[3], b[3]) - max(a[1], b[1])
	if ih <= 0 || iw <= 0 {
		return 0
	}
	inter := ih * iw
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// IoU computes the overlap of every box in boxes (..., 4) with every ground truth box in gt (G, 4).
// The result has shape (..., G); G may be 0.
func IoU(boxes, gt *tensor.Dense) (*tensor.Dense, error) {
	if err := checkBoxes(boxes); err != nil {
		return nil, err
	}
	if err := checkBoxes(gt); err != nil {
		return nil, err
	}
	if gt.Dims() != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected ground truth of shape (G,4), got %v", gt.Shape())
	}

	boxData := Float32Data(boxes)
	gtData := Float32Data(gt)
	numBoxes := len(boxData) / 4
	numGT := gt.Shape()[0]

	ious := make([]float32, numBoxes*numGT)
	for a := range numBoxes {
		box := boxData[a*4 : a*4+4]
		for g := range numGT {
			ious[a*numGT+g] = BoxIoU(box, gtData[g*4:g*4+4])
		}
	}

	outShape := append(boxes.Shape().Clone()[:boxes.Dims()-1], numGT)
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(outShape...),
		tensor.WithBacking(ious),
	), nil
}
