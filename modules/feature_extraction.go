package modules

import (
	"image"
	"time"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// FeatureMap is the backbone output for one image together with the size the image was
// resized to before inference.
type FeatureMap struct {
	Features    *tensor.Dense
	ImageHeight int
	ImageWidth  int
}

// Grid returns the spatial size (Hf, Wf) of the feature map.
func (f *FeatureMap) Grid() (int, int) {
	shape := f.Features.Shape()
	return shape[1], shape[2]
}

type FeatureExtractionClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.BackboneParams
	ModelConfig  *triton_proto.ModelConfigResponse
}

func NewFeatureExtractionClient(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.BackboneParams) (*FeatureExtractionClient, error) {
	client := &FeatureExtractionClient{}
	client.ModelParams = cfg

	inferenceConfig, err := tritonClient.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get configuration of model %s", cfg.ModelName)
	}
	client.tritonClient = tritonClient
	client.ModelConfig = inferenceConfig

	return client, nil
}

// Infer resizes img (BGR) and runs it through the backbone.
func (c *FeatureExtractionClient) Infer(img gocv.Mat) (*FeatureMap, error) {
	start := time.Now()
	imgTensor, err := c.preprocess(img)
	if err != nil {
		return nil, err
	}
	shape := imgTensor.Shape()

	modelRequest, err := newInferRequest(c.ModelParams.ModelName, c.ModelConfig, imgTensor)
	if err != nil {
		return nil, err
	}
	inferResp, err := c.tritonClient.ModelGRPCInfer(c.ModelParams.Timeout, modelRequest)
	if err != nil {
		return nil, errors.Wrapf(err, "inference on model %s failed", c.ModelParams.ModelName)
	}
	netOut, err := decodeInferOutputs(inferResp, c.ModelConfig)
	if err != nil {
		return nil, err
	}

	features := netOut[0]
	if features.Dims() != 4 || features.Shape()[0] != 1 {
		return nil, errors.Errorf("expected backbone features of shape (1,Hf,Wf,C), got %v", features.Shape())
	}

	utils.Logger.Debug("extracted features",
		zap.Ints("input_shape", shape),
		zap.Ints("feature_shape", features.Shape()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &FeatureMap{
		Features:    features,
		ImageHeight: shape[1],
		ImageWidth:  shape[2],
	}, nil
}

// scaledSize returns the (height, width) that brings the shorter side of an image to shortSide
// while keeping its aspect ratio.
func scaledSize(height, width, shortSide int) (int, int) {
	if height <= width {
		return shortSide, max(1, int(float64(width)*float64(shortSide)/float64(height)+0.5))
	}
	return max(1, int(float64(height)*float64(shortSide)/float64(width)+0.5)), shortSide
}

// preprocess returns the resized, mean subtracted RGB image as a (1, H, W, 3) tensor.
func (c *FeatureExtractionClient) preprocess(img gocv.Mat) (*tensor.Dense, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	if len(c.ModelParams.PixelMeans) != 3 {
		return nil, errors.Errorf("expected 3 pixel means, got %d", len(c.ModelParams.PixelMeans))
	}
	imgShape := img.Size()
	newHeight, newWidth := scaledSize(imgShape[0], imgShape[1], c.ModelParams.ImageShortSide)

	resizedImg := gocv.NewMat()
	defer resizedImg.Close()
	gocv.Resize(img, &resizedImg, image.Point{X: newWidth, Y: newHeight}, 0, 0, gocv.InterpolationLinear)

	rgbImg := gocv.NewMat()
	defer rgbImg.Close()
	gocv.CvtColor(resizedImg, &rgbImg, gocv.ColorBGRToRGB)

	data := make([]float32, newHeight*newWidth*3)
	for y := range newHeight {
		for x := range newWidth {
			px := rgbImg.GetVecbAt(y, x)
			for z := range 3 {
				data[(y*newWidth+x)*3+z] = float32(px[z]) - c.ModelParams.PixelMeans[z]
			}
		}
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, newHeight, newWidth, 3),
		tensor.WithBacking(data),
	), nil
}
