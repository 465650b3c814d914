package modules

import (
	"fmt"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/processing"
	"github.com/okieraised/go-fasterrcnn/rcnn"
	"gorgonia.org/tensor"
)

// Detection is one final object. Box is normalized (xmin, ymin, width, height).
type Detection struct {
	Label     int        `json:"label"`
	ClassName string     `json:"class_name"`
	Score     float32    `json:"score"`
	Box       [4]float32 `json:"box"`
}

type DetectionOutputClient struct {
	*config.ProposalParams
	classNames []string
}

func NewDetectionOutputClient(cfg *config.ProposalParams, classNames []string) *DetectionOutputClient {
	return &DetectionOutputClient{
		ProposalParams: cfg,
		classNames:     classNames,
	}
}

// Infer keeps the best scoring, non overlapping proposals given the head's class
// probabilities (N, C) for the proposal corner boxes (N, 4).
func (c *DetectionOutputClient) Infer(boxes, classProbs *tensor.Dense) ([]Detection, error) {
	selected, err := rcnn.SelectDetections(boxes, classProbs, c.ProposalParams)
	if err != nil {
		return nil, err
	}
	plot, err := processing.CornerToPlot(selected.Boxes)
	if err != nil {
		return nil, err
	}
	plotData := plot.Float32s()

	detections := make([]Detection, selected.Len())
	for i, label := range selected.Labels {
		det := Detection{
			Label: label,
			Score: selected.Scores[i],
		}
		copy(det.Box[:], plotData[i*4:i*4+4])
		if label < len(c.classNames) {
			det.ClassName = c.classNames[label]
		} else {
			det.ClassName = fmt.Sprintf("class_%d", label)
		}
		detections[i] = det
	}
	return detections, nil
}
