package modules

import (
	"github.com/okieraised/go-fasterrcnn/utils"
	"github.com/okieraised/go-triton-client/triton_proto"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// newInferRequest binds inputs, in order, to the inputs declared by the model configuration.
func newInferRequest(modelName string, modelConfig *triton_proto.ModelConfigResponse, inputs ...*tensor.Dense) (*triton_proto.ModelInferRequest, error) {
	declared := modelConfig.GetConfig().GetInput()
	if len(declared) != len(inputs) {
		return nil, errors.Errorf("model %s declares %d inputs, got %d", modelName, len(declared), len(inputs))
	}

	modelInputs := make([]*triton_proto.ModelInferRequest_InferInputTensor, 0, len(inputs))
	for idx, inputCfg := range declared {
		shape := make([]int64, 0, inputs[idx].Dims())
		for _, d := range inputs[idx].Shape() {
			shape = append(shape, int64(d))
		}
		modelInputs = append(modelInputs, &triton_proto.ModelInferRequest_InferInputTensor{
			Name:     inputCfg.Name,
			Datatype: inputCfg.DataType.String()[5:],
			Shape:    shape,
			Contents: &triton_proto.InferTensorContents{
				Fp32Contents: inputs[idx].Float32s(),
			},
		})
	}

	return &triton_proto.ModelInferRequest{
		ModelName: modelName,
		Inputs:    modelInputs,
	}, nil
}

// decodeInferOutputs returns the raw outputs as Float32 tensors in the order the model
// configuration declares them.
func decodeInferOutputs(resp *triton_proto.ModelInferResponse, modelConfig *triton_proto.ModelConfigResponse) ([]*tensor.Dense, error) {
	declared := modelConfig.GetConfig().GetOutput()
	if len(resp.RawOutputContents) != len(resp.Outputs) {
		return nil, errors.Errorf("response carries %d outputs but %d raw contents", len(resp.Outputs), len(resp.RawOutputContents))
	}

	netOut := make([]*tensor.Dense, len(declared))
	for idx, out := range resp.Outputs {
		outShape := make([]int, 0, len(out.Shape))
		size := 1
		for _, d := range out.Shape {
			outShape = append(outShape, int(d))
			size *= int(d)
		}
		data, err := utils.DecodeRawOutput(out.Datatype, resp.RawOutputContents[idx])
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", out.Name)
		}
		if len(data) != size {
			return nil, errors.Errorf("output %s has %d values for shape %v", out.Name, len(data), outShape)
		}
		outTensor := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(outShape...),
			tensor.WithBacking(data),
		)

		for subIdx, cfg := range declared {
			if out.Name == cfg.Name {
				netOut[subIdx] = outTensor
			}
		}
	}

	for idx, out := range netOut {
		if out == nil {
			return nil, errors.Errorf("missing output %s", declared[idx].Name)
		}
	}
	return netOut, nil
}
