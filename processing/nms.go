package processing

import (
	"github.com/okieraised/go-fasterrcnn/utils"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NMS greedily keeps the highest scoring corner boxes, dropping any box whose IoU with an
// already kept box exceeds threshold. At most maxOutput indices are returned (all when
// maxOutput <= 0), ordered by decreasing score.
func NMS(boxes, scores *tensor.Dense, threshold float32, maxOutput int) ([]int, error) {
	if err := checkBoxes(boxes); err != nil {
		return nil, err
	}
	if boxes.Dims() != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected boxes of shape (N,4), got %v", boxes.Shape())
	}
	numBoxes := boxes.Shape()[0]
	if scores.Dims() != 1 || scores.Shape()[0] != numBoxes {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %d scores, got shape %v", numBoxes, scores.Shape())
	}
	if numBoxes == 0 {
		return []int{}, nil
	}

	order, err := utils.ArgSortDescending(scores)
	if err != nil {
		return nil, err
	}

	data := Float32Data(boxes)
	suppressed := make([]bool, numBoxes)
	keep := make([]int, 0)
	for pos, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		if maxOutput > 0 && len(keep) == maxOutput {
			break
		}
		for _, j := range order[pos+1:] {
			if suppressed[j] {
				continue
			}
			if BoxIoU(data[i*4:i*4+4], data[j*4:j*4+4]) > threshold {
				suppressed[j] = true
			}
		}
	}

	return keep, nil
}
