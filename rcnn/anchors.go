package rcnn

import (
	"context"
	"fmt"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// linspace mirrors a framework linspace: num evenly spaced points from 0 to 1 inclusive,
// and the single point 0 when num is 1.
func linspace(num int) []float32 {
	out := make([]float32, num)
	if num == 1 {
		return out
	}
	for i := range num {
		out[i] = float32(i) / float32(num-1)
	}
	return out
}

// Anchors lays the configured anchor shapes over a featH x featW grid spanning the
// normalized image. The result is (featH, featW, K, 4) in center format.
func Anchors(featH, featW, imgH, imgW int, cfg *config.AnchorParams) (*tensor.Dense, error) {
	if featH <= 0 || featW <= 0 {
		return nil, errors.Errorf("feature map dimensions must be positive, got %dx%d", featH, featW)
	}
	if imgH <= 0 || imgW <= 0 {
		return nil, errors.Errorf("image dimensions must be positive, got %dx%d", imgH, imgW)
	}

	baseAnchors, err := processing.BaseAnchorShapes(cfg)
	if err != nil {
		return nil, err
	}
	a := baseAnchors.Shape()[0]
	shapes := baseAnchors.Float32s()

	ys := linspace(featH)
	xs := linspace(featW)

	data := make([]float32, featH*featW*a*4)
	for ih := range featH {
		for iw := range featW {
			for k := range a {
				o := ((ih*featW+iw)*a + k) * 4
				data[o] = xs[iw]
				data[o+1] = ys[ih]
				data[o+2] = shapes[k*2] / float32(imgW)
				data[o+3] = shapes[k*2+1] / float32(imgH)
			}
		}
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(featH, featW, a, 4),
		tensor.WithBacking(data),
	), nil
}

// AnchorCache stores anchor grids by key. Cached tensors are shared and must not be mutated.
type AnchorCache interface {
	Get(ctx context.Context, key string) (*tensor.Dense, bool, error)
	Set(ctx context.Context, key string, anchors *tensor.Dense) error
}

// AnchorGenerator produces anchor grids for one anchor configuration, memoizing them per
// feature map and image size when a cache is attached.
type AnchorGenerator struct {
	*config.AnchorParams
	cache AnchorCache
}

func NewAnchorGenerator(cfg *config.AnchorParams, cache AnchorCache) *AnchorGenerator {
	return &AnchorGenerator{
		AnchorParams: cfg,
		cache:        cache,
	}
}

func (g *AnchorGenerator) key(featH, featW, imgH, imgW int) string {
	return fmt.Sprintf("anchors:%dx%d:%dx%d:%v:%v", featH, featW, imgH, imgW, g.Scales, g.AspectRatios)
}

func (g *AnchorGenerator) Anchors(ctx context.Context, featH, featW, imgH, imgW int) (*tensor.Dense, error) {
	if g.cache == nil {
		return Anchors(featH, featW, imgH, imgW, g.AnchorParams)
	}

	key := g.key(featH, featW, imgH, imgW)
	cached, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "anchor cache lookup failed")
	}
	if ok {
		return cached, nil
	}

	anchors, err := Anchors(featH, featW, imgH, imgW, g.AnchorParams)
	if err != nil {
		return nil, err
	}
	if err := g.cache.Set(ctx, key, anchors); err != nil {
		return nil, errors.Wrap(err, "anchor cache store failed")
	}
	return anchors, nil
}
