package modules

import (
	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/rcnn"
	"github.com/okieraised/go-fasterrcnn/utils"
	"go.uber.org/zap"
)

type ProposalSelectionClient struct {
	*config.ProposalParams
}

func NewProposalSelectionClient(cfg *config.ProposalParams) *ProposalSelectionClient {
	return &ProposalSelectionClient{
		ProposalParams: cfg,
	}
}

func (c *ProposalSelectionClient) Infer(rpn *RPNOutput) (*rcnn.Proposals, error) {
	proposals, err := rcnn.GenerateProposals(rpn.Reg, rpn.Cls, c.ProposalParams)
	if err != nil {
		return nil, err
	}
	utils.Logger.Debug("selected proposals", zap.Int("count", proposals.Len()))
	return proposals, nil
}
