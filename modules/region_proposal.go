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

// RPNOutput holds the RPN head predictions: box regressions (Hf, Wf, K, 4) in center format
// and two-way objectness probabilities (Hf, Wf, K, 2).
type RPNOutput struct {
	Reg *tensor.Dense
	Cls *tensor.Dense
}

type RegionProposalClient struct {
	tritonClient *gotritonclient.TritonGRPCClient
	ModelParams  *config.RPNHeadParams
	ModelConfig  *triton_proto.ModelConfigResponse
	numAnchors   int
}

func NewRegionProposalClient(tritonClient *gotritonclient.TritonGRPCClient, cfg *config.RPNHeadParams, anchorCfg *config.AnchorParams) (*RegionProposalClient, error) {
	client := &RegionProposalClient{}
	client.ModelParams = cfg

	inferenceConfig, err := tritonClient.GetModelConfiguration(cfg.Timeout, cfg.ModelName, "")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get configuration of model %s", cfg.ModelName)
	}
	client.tritonClient = tritonClient
	client.ModelConfig = inferenceConfig
	client.numAnchors = anchorCfg.NumAnchors()

	return client, nil
}

func (c *RegionProposalClient) Infer(fm *FeatureMap) (*RPNOutput, error) {
	start := time.Now()
	modelRequest, err := newInferRequest(c.ModelParams.ModelName, c.ModelConfig, fm.Features)
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

	out, err := splitRPNOutputs(netOut, c.numAnchors)
	if err != nil {
		return nil, err
	}

	utils.Logger.Debug("ran rpn head",
		zap.Ints("reg_shape", out.Reg.Shape()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// splitRPNOutputs picks the regression (1, Hf, Wf, 4K) and objectness (1, Hf, Wf, 2K) outputs
// by channel count and reshapes them to the anchor grid.
func splitRPNOutputs(netOut []*tensor.Dense, numAnchors int) (*RPNOutput, error) {
	out := &RPNOutput{}
	for _, t := range netOut {
		shape := t.Shape()
		if len(shape) != 4 || shape[0] != 1 {
			return nil, errors.Errorf("expected rpn output of shape (1,Hf,Wf,C), got %v", shape)
		}
		featH, featW := shape[1], shape[2]

		var target **tensor.Dense
		var width int
		switch shape[3] {
		case numAnchors * 4:
			target, width = &out.Reg, 4
		case numAnchors * 2:
			target, width = &out.Cls, 2
		default:
			return nil, errors.Errorf("rpn output has %d channels, want %d or %d", shape[3], numAnchors*4, numAnchors*2)
		}

		reshaped := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(featH, featW, numAnchors, width),
			tensor.WithBacking(t.Float32s()),
		)
		*target = reshaped
	}

	if out.Reg == nil || out.Cls == nil {
		return nil, errors.New("rpn head must return both regression and objectness outputs")
	}
	if out.Reg.Shape()[0] != out.Cls.Shape()[0] || out.Reg.Shape()[1] != out.Cls.Shape()[1] {
		return nil, errors.Errorf("rpn outputs disagree on the grid: %v and %v", out.Reg.Shape(), out.Cls.Shape())
	}
	return out, nil
}
