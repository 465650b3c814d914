package modules

import (
	"testing"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalSelectionClient_Infer(t *testing.T) {
	rpn := &RPNOutput{
		Reg: newTensor([]float32{
			0.5, 0.5, 0.4, 0.4,
			0.5, 0.5, 0.38, 0.4,
			0.2, 0.8, 0.1, 0.1,
		}, 1, 1, 3, 4),
		Cls: newTensor([]float32{
			0.6, 0.4,
			0.7, 0.3,
			0.2, 0.8,
		}, 1, 1, 3, 2),
	}

	client := NewProposalSelectionClient(config.DefaultProposalParams)
	proposals, err := client.Infer(rpn)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, proposals.AnchorIndices)
	assert.InDeltaSlice(t, []float32{0.7, 0.2}, proposals.Scores.Float32s(), 1e-6)
	assert.InDeltaSlice(t, []float32{
		0.3, 0.31, 0.7, 0.69,
		0.75, 0.15, 0.85, 0.25,
	}, proposals.Boxes.Float32s(), 1e-6)
}
