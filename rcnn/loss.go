package rcnn

import (
	"github.com/chewxy/math32"
	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// probEpsilon bounds probabilities away from 0 and 1 before taking logs.
const probEpsilon = 1e-7

type Losses struct {
	RegLoss   float32 `json:"reg_loss"`
	ClsLoss   float32 `json:"cls_loss"`
	HeadLoss  float32 `json:"head_loss"`
	RPNLoss   float32 `json:"rpn_loss"`
	TotalLoss float32 `json:"total_loss"`
}

func huber(x, delta float32) float32 {
	ax := math32.Abs(x)
	if ax <= delta {
		return 0.5 * x * x
	}
	return delta * (ax - 0.5*delta)
}

func clipProb(p float32) float32 {
	return max(min(p, 1-probEpsilon), probEpsilon)
}

// RegressionLoss is the Huber loss between parameterized predictions and targets (P, 4),
// averaged over the four coordinates and then over the P positive samples. It is 0 when P is 0.
func RegressionLoss(predicted, target *tensor.Dense, delta float32) (float32, error) {
	if predicted.Dims() != 2 || predicted.Shape()[1] != 4 || !predicted.Shape().Eq(target.Shape()) {
		return 0, errors.Wrapf(processing.ErrShapeMismatch,
			"expected matching (P,4) regression tensors, got %v and %v", predicted.Shape(), target.Shape())
	}
	numSamples := predicted.Shape()[0]
	if numSamples == 0 {
		return 0, nil
	}

	p, t := processing.Float32Data(predicted), processing.Float32Data(target)
	perSample := make([]float64, numSamples)
	for i := range numSamples {
		var sum float32
		for c := range 4 {
			sum += huber(p[i*4+c]-t[i*4+c], delta)
		}
		perSample[i] = float64(sum / 4)
	}
	return float32(stat.Mean(perSample, nil)), nil
}

// ClassificationLoss is the binary cross-entropy between the two-way objectness scores of
// the sampled anchors and the targets [1,0] for positives and [0,1] for negatives. It relies
// on the batch listing its positives first. It is 0 for an empty batch.
func ClassificationLoss(cls *tensor.Dense, batch *Minibatch) (float32, error) {
	if cls.Dims() != 4 || cls.Shape()[3] != 2 {
		return 0, errors.Wrapf(processing.ErrShapeMismatch, "expected objectness of shape (Hf,Wf,K,2), got %v", cls.Shape())
	}
	if len(batch.Indices) == 0 {
		return 0, nil
	}
	shape := cls.Shape()
	featH, featW, numK := shape[0], shape[1], shape[2]
	data := processing.Float32Data(cls)

	perSample := make([]float64, len(batch.Indices))
	for i, idx := range batch.Indices {
		if idx.Row < 0 || idx.Col < 0 || idx.K < 0 || idx.Row >= featH || idx.Col >= featW || idx.K >= numK {
			return 0, errors.Wrapf(processing.ErrShapeMismatch, "sample %+v outside objectness grid %v", idx, shape)
		}
		o := ((idx.Row*featW+idx.Col)*numK + idx.K) * 2
		target := [2]float32{0, 1}
		if i < batch.PositiveCount {
			target = [2]float32{1, 0}
		}
		var sum float32
		for c := range 2 {
			p := clipProb(data[o+c])
			sum -= target[c]*math32.Log(p) + (1-target[c])*math32.Log(1-p)
		}
		perSample[i] = float64(sum / 2)
	}
	return float32(stat.Mean(perSample, nil)), nil
}

// ClassTargets returns the class label of the ground truth matched by each sampled positive.
func ClassTargets(batch *Minibatch, gtLabels []int) ([]int, error) {
	targets := make([]int, batch.PositiveCount)
	for i, idx := range batch.Positives() {
		if idx.GT < 0 || idx.GT >= len(gtLabels) {
			return nil, errors.Errorf("positive sample %+v has no ground truth label among %d", idx, len(gtLabels))
		}
		targets[i] = gtLabels[idx.GT]
	}
	return targets, nil
}

// HeadLoss is the categorical cross-entropy between the head's class probabilities (P, C)
// and the P positive class targets, averaged over positives. It is 0 when P is 0.
func HeadLoss(classProbs *tensor.Dense, targets []int) (float32, error) {
	if len(targets) == 0 {
		return 0, nil
	}
	if classProbs.Dims() != 2 || classProbs.Shape()[0] != len(targets) {
		return 0, errors.Wrapf(processing.ErrShapeMismatch,
			"expected class probabilities of shape (%d,C), got %v", len(targets), classProbs.Shape())
	}
	numClasses := classProbs.Shape()[1]
	data := processing.Float32Data(classProbs)

	perSample := make([]float64, len(targets))
	for i, label := range targets {
		if label < 0 || label >= numClasses {
			return 0, errors.Errorf("class target %d outside %d classes", label, numClasses)
		}
		perSample[i] = float64(-math32.Log(clipProb(data[i*numClasses+label])))
	}
	return float32(stat.Mean(perSample, nil)), nil
}

// CombineLosses weights the regression loss by cfg.Lambda into the RPN loss and adds the head loss.
func CombineLosses(regLoss, clsLoss, headLoss float32, cfg *config.LossParams) Losses {
	if cfg == nil {
		cfg = config.DefaultLossParams
	}
	rpnLoss := clsLoss + cfg.Lambda*regLoss
	return Losses{
		RegLoss:   regLoss,
		ClsLoss:   clsLoss,
		HeadLoss:  headLoss,
		RPNLoss:   rpnLoss,
		TotalLoss: rpnLoss + headLoss,
	}
}
