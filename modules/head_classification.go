package modules

import (
	"time"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/utils"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/okieraised/go-triton-client/triton_proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

type HeadClassificationClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.HeadClassifierParams
	ModelConfig  *triton_proto.ModelConfigResponse
	batchSize    int
}

func NewHeadClassificationClient(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.HeadClassifierParams) (*HeadClassificationClient, error) {
	if cfg.BatchSize <= 0 {
		return nil, errors.Errorf("head classifier batch size must be positive, got %d", cfg.BatchSize)
	}
	client := &HeadClassificationClient{}
	client.ModelParams = cfg

	inferenceConfig, err := tritonClient.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get configuration of model %s", cfg.ModelName)
	}
	client.tritonClient = tritonClient
	client.ModelConfig = inferenceConfig
	client.batchSize = cfg.BatchSize

	return client, nil
}

// Infer pools the feature map at every corner box in rois (N, 4) and returns the class
// probabilities (N, NumClasses). RoIs are sent in fixed size batches padded with empty boxes.
func (c *HeadClassificationClient) Infer(fm *FeatureMap, rois *tensor.Dense) (*tensor.Dense, error) {
	if rois.Dims() != 2 || rois.Shape()[1] != 4 {
		return nil, errors.Errorf("expected rois of shape (N,4), got %v", rois.Shape())
	}
	start := time.Now()
	numRoIs := rois.Shape()[0]
	numClasses := c.ModelParams.NumClasses

	probs := make([]float32, 0, numRoIs*numClasses)
	for _, batch := range batchRows(rois.Float32s(), numRoIs, 4, c.batchSize) {
		modelRequest, err := newInferRequest(c.ModelParams.ModelName, c.ModelConfig, fm.Features, batch.rows)
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

		out := netOut[0]
		if out.Dims() != 2 || out.Shape()[1] != numClasses || out.Shape()[0] < batch.valid {
			return nil, errors.Errorf("expected class probabilities of shape (%d,%d), got %v", c.batchSize, numClasses, out.Shape())
		}
		probs = append(probs, out.Float32s()[:batch.valid*numClasses]...)
	}

	utils.Logger.Debug("classified rois",
		zap.Int("rois", numRoIs),
		zap.Duration("elapsed", time.Since(start)),
	)

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(numRoIs, numClasses),
		tensor.WithBacking(probs),
	), nil
}

type rowBatch struct {
	rows  *tensor.Dense
	valid int
}

// batchRows splits a row-major (numRows, numCols) buffer into (batchSize, numCols) tensors,
// zero padding the last one. valid counts the real rows of each batch.
func batchRows(data []float32, numRows, numCols, batchSize int) []rowBatch {
	batches := make([]rowBatch, 0, (numRows+batchSize-1)/batchSize)
	for i := 0; i < numRows; i += batchSize {
		valid := min(batchSize, numRows-i)
		padded := make([]float32, batchSize*numCols)
		copy(padded, data[i*numCols:(i+valid)*numCols])
		batches = append(batches, rowBatch{
			rows: tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(batchSize, numCols),
				tensor.WithBacking(padded),
			),
			valid: valid,
		})
	}
	return batches
}
