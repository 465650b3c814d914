package processing

import (
	"gorgonia.org/tensor"
)

// Box layouts along the last axis:
//
//	corner: (ymin, xmin, ymax, xmax)
//	center: (cx, cy, w, h)
//	plot:   (xmin, ymin, w, h)

func mapBoxes(boxes *tensor.Dense, fn func(in, out []float32)) (*tensor.Dense, error) {
	if err := checkBoxes(boxes); err != nil {
		return nil, err
	}
	src := Float32Data(boxes)
	dst := make([]float32, len(src))
	for i := 0; i+4 <= len(src); i += 4 {
		fn(src[i:i+4], dst[i:i+4])
	}
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(boxes.Shape().Clone()...),
		tensor.WithBacking(dst),
	), nil
}

func CenterToCorner(boxes *tensor.Dense) (*tensor.Dense, error) {
	return mapBoxes(boxes, func(in, out []float32) {
		cx, cy, w, h := in[0], in[1], in[2], in[3]
		out[0] = cy - h/2
		out[1] = cx - w/2
		out[2] = cy + h/2
		out[3] = cx + w/2
	})
}

func CornerToCenter(boxes *tensor.Dense) (*tensor.Dense, error) {
	return mapBoxes(boxes, func(in, out []float32) {
		ymin, xmin, ymax, xmax := in[0], in[1], in[2], in[3]
		out[0] = (xmin + xmax) / 2
		out[1] = (ymin + ymax) / 2
		out[2] = xmax - xmin
		out[3] = ymax - ymin
	})
}

// CornerToPlot clips boxes to the image before conversion. Display only.
func CornerToPlot(boxes *tensor.Dense) (*tensor.Dense, error) {
	return mapBoxes(boxes, func(in, out []float32) {
		ymin, xmin, ymax, xmax := clamp01(in[0]), clamp01(in[1]), clamp01(in[2]), clamp01(in[3])
		out[0] = xmin
		out[1] = ymin
		out[2] = xmax - xmin
		out[3] = ymax - ymin
	})
}

// ClipBoxes clamps normalized corner boxes to [0,1].
func ClipBoxes(boxes *tensor.Dense) (*tensor.Dense, error) {
	return mapBoxes(boxes, func(in, out []float32) {
		for i := range 4 {
			out[i] = clamp01(in[i])
		}
	})
}

func clamp01(x float32) float32 {
	return max(min(x, 1), 0)
}
