package processing

import (
	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// BaseAnchorShapes enumerates the (width, height) of every anchor slot in pixels.
// Slots are aspect-major: k = ratioIdx*len(Scales) + scaleIdx, width = scale, height = width*ratio.
func BaseAnchorShapes(cfg *config.AnchorParams) (*tensor.Dense, error) {
	if cfg == nil || len(cfg.Scales) == 0 || len(cfg.AspectRatios) == 0 {
		return nil, errors.New("anchor config needs at least one scale and one aspect ratio")
	}

	shapes := make([]float32, 0, 2*cfg.NumAnchors())
	for _, ratio := range cfg.AspectRatios {
		if ratio <= 0 {
			return nil, errors.Errorf("aspect ratio must be positive, got %v", ratio)
		}
		for _, scale := range cfg.Scales {
			if scale <= 0 {
				return nil, errors.Errorf("anchor scale must be positive, got %v", scale)
			}
			shapes = append(shapes, scale, scale*ratio)
		}
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(cfg.NumAnchors(), 2),
		tensor.WithBacking(shapes),
	), nil
}

// CrossBoundaryMask flags the corner boxes lying fully inside the normalized image.
// The result drops the last axis of the input.
func CrossBoundaryMask(cornerBoxes *tensor.Dense) (*tensor.Dense, error) {
	if err := checkBoxes(cornerBoxes); err != nil {
		return nil, err
	}
	data := Float32Data(cornerBoxes)
	mask := make([]bool, len(data)/4)
	for i := range mask {
		inside := true
		for _, v := range data[i*4 : i*4+4] {
			if v < 0 || v > 1 {
				inside = false
				break
			}
		}
		mask[i] = inside
	}

	shape := cornerBoxes.Shape().Clone()
	return tensor.New(
		tensor.Of(tensor.Bool),
		tensor.WithShape(shape[:len(shape)-1]...),
		tensor.WithBacking(mask),
	), nil
}
