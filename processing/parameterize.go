package processing

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// sizeEpsilon keeps the log finite for zero-size boxes.
const sizeEpsilon = 1e-10

func encode(box, anchor, out []float32) {
	w := box[2] + sizeEpsilon
	h := box[3] + sizeEpsilon
	out[0] = (box[0] - anchor[0]) / anchor[2]
	out[1] = (box[1] - anchor[1]) / anchor[3]
	out[2] = math32.Log(w / anchor[2])
	out[3] = math32.Log(h / anchor[3])
}

// Parameterize expresses center boxes as (tx, ty, tw, th) offsets from anchors of the same shape.
func Parameterize(boxes, anchors *tensor.Dense) (*tensor.Dense, error) {
	if err := checkBoxes(boxes); err != nil {
		return nil, err
	}
	if err := checkBoxes(anchors); err != nil {
		return nil, err
	}
	if !boxes.Shape().Eq(anchors.Shape()) {
		return nil, errors.Wrapf(ErrShapeMismatch, "boxes %v and anchors %v differ", boxes.Shape(), anchors.Shape())
	}

	boxData := Float32Data(boxes)
	anchorData := Float32Data(anchors)
	out := make([]float32, len(boxData))
	for i := 0; i+4 <= len(boxData); i += 4 {
		encode(boxData[i:i+4], anchorData[i:i+4], out[i:i+4])
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(boxes.Shape().Clone()...),
		tensor.WithBacking(out),
	), nil
}

// ParameterizeGroundTruth encodes every center ground truth box (G, 4) against every anchor (..., 4).
// The result has shape (..., G, 4).
func ParameterizeGroundTruth(gt, anchors *tensor.Dense) (*tensor.Dense, error) {
	if err := checkBoxes(gt); err != nil {
		return nil, err
	}
	if err := checkBoxes(anchors); err != nil {
		return nil, err
	}
	if gt.Dims() != 2 {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected ground truth of shape (G,4), got %v", gt.Shape())
	}

	gtData := Float32Data(gt)
	anchorData := Float32Data(anchors)
	numGT := gt.Shape()[0]
	numAnchors := len(anchorData) / 4

	out := make([]float32, numAnchors*numGT*4)
	for a := range numAnchors {
		anchor := anchorData[a*4 : a*4+4]
		for g := range numGT {
			o := (a*numGT + g) * 4
			encode(gtData[g*4:g*4+4], anchor, out[o:o+4])
		}
	}

	shape := anchors.Shape().Clone()
	outShape := append(shape[:len(shape)-1], numGT, 4)
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(outShape...),
		tensor.WithBacking(out),
	), nil
}

// Reconstruct inverts Parameterize: it decodes (tx, ty, tw, th) offsets back into center boxes.
func Reconstruct(params, anchors *tensor.Dense) (*tensor.Dense, error) {
	if err := checkBoxes(params); err != nil {
		return nil, err
	}
	if err := checkBoxes(anchors); err != nil {
		return nil, err
	}
	if !params.Shape().Eq(anchors.Shape()) {
		return nil, errors.Wrapf(ErrShapeMismatch, "params %v and anchors %v differ", params.Shape(), anchors.Shape())
	}

	paramData := Float32Data(params)
	anchorData := Float32Data(anchors)
	out := make([]float32, len(paramData))
	for i := 0; i+4 <= len(paramData); i += 4 {
		t, a := paramData[i:i+4], anchorData[i:i+4]
		out[i] = t[0]*a[2] + a[0]
		out[i+1] = t[1]*a[3] + a[1]
		out[i+2] = a[2]*math32.Exp(t[2]) - sizeEpsilon
		out[i+3] = a[3]*math32.Exp(t[3]) - sizeEpsilon
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(params.Shape().Clone()...),
		tensor.WithBacking(out),
	), nil
}
