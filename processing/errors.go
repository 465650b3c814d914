package processing

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShapeMismatch is returned when tensors do not satisfy the shape contract of an operation.
var ErrShapeMismatch = errors.New("shape mismatch")

func checkBoxes(boxes *tensor.Dense) error {
	if boxes == nil {
		return errors.Wrap(ErrShapeMismatch, "nil box tensor")
	}
	shape := boxes.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != 4 {
		return errors.Wrapf(ErrShapeMismatch, "expected boxes with a last axis of 4, got shape %v", shape)
	}
	if boxes.Dtype() != tensor.Float32 {
		return errors.Errorf("expected float32 boxes, got %v", boxes.Dtype())
	}
	return nil
}

// Float32Data returns the row-major backing data of t, materializing views first.
func Float32Data(t *tensor.Dense) []float32 {
	if t.IsView() {
		t = t.Materialize().(*tensor.Dense)
	}
	return t.Float32s()
}

func BoolData(t *tensor.Dense) []bool {
	if t.IsView() {
		t = t.Materialize().(*tensor.Dense)
	}
	return t.Bools()
}
