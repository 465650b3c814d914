package config

import (
	"time"
)

type MaxIoUScope string

const (
	// MaxIoUScopeCell takes the fallback maximum over every anchor slot and ground truth of one grid cell.
	MaxIoUScopeCell MaxIoUScope = "cell"
	// MaxIoUScopeGroundTruth takes the fallback maximum over every anchor for each ground truth.
	MaxIoUScopeGroundTruth MaxIoUScope = "ground_truth"
)

type AnchorParams struct {
	Scales       []float32 `json:"scales" mapstructure:"scales"`
	AspectRatios []float32 `json:"aspect_ratios" mapstructure:"aspect_ratios"`
}

var DefaultAnchorParams = &AnchorParams{
	Scales:       []float32{128, 256, 512},
	AspectRatios: []float32{1, 0.5, 2},
}

func NewAnchorParams(scales, aspectRatios []float32) *AnchorParams {
	return &AnchorParams{
		Scales:       scales,
		AspectRatios: aspectRatios,
	}
}

// NumAnchors is the number of anchor slots per grid cell.
func (p *AnchorParams) NumAnchors() int {
	return len(p.Scales) * len(p.AspectRatios)
}

type LabelParams struct {
	PositiveIoU          float32     `json:"positive_iou" mapstructure:"positive_iou"`
	NegativeIoU          float32     `json:"negative_iou" mapstructure:"negative_iou"`
	UseCrossBoundaryMask bool        `json:"use_cross_boundary_mask" mapstructure:"use_cross_boundary_mask"`
	MaxIoUScope          MaxIoUScope `json:"max_iou_scope" mapstructure:"max_iou_scope"`
}

var DefaultLabelParams = &LabelParams{
	PositiveIoU:          0.7,
	NegativeIoU:          0.3,
	UseCrossBoundaryMask: false,
	MaxIoUScope:          MaxIoUScopeCell,
}

func NewLabelParams(positiveIoU, negativeIoU float32, useCrossBoundaryMask bool, scope MaxIoUScope) *LabelParams {
	return &LabelParams{
		PositiveIoU:          positiveIoU,
		NegativeIoU:          negativeIoU,
		UseCrossBoundaryMask: useCrossBoundaryMask,
		MaxIoUScope:          scope,
	}
}

type SamplerParams struct {
	DesiredTotal    int `json:"desired_total" mapstructure:"desired_total"`
	DesiredPositive int `json:"desired_positive" mapstructure:"desired_positive"`
}

var DefaultSamplerParams = &SamplerParams{
	DesiredTotal:    256,
	DesiredPositive: 128,
}

func NewSamplerParams(desiredTotal, desiredPositive int) *SamplerParams {
	return &SamplerParams{
		DesiredTotal:    desiredTotal,
		DesiredPositive: desiredPositive,
	}
}

type LossParams struct {
	Lambda     float32 `json:"lambda" mapstructure:"lambda"`
	HuberDelta float32 `json:"huber_delta" mapstructure:"huber_delta"`
}

var DefaultLossParams = &LossParams{
	Lambda:     1.0,
	HuberDelta: 1.0,
}

func NewLossParams(lambda, huberDelta float32) *LossParams {
	return &LossParams{
		Lambda:     lambda,
		HuberDelta: huberDelta,
	}
}

type ProposalParams struct {
	PreNMSTopK            int     `json:"pre_nms_top_k" mapstructure:"pre_nms_top_k"`
	PostNMSTopK           int     `json:"post_nms_top_k" mapstructure:"post_nms_top_k"`
	NMSThreshold          float32 `json:"nms_threshold" mapstructure:"nms_threshold"`
	DetectionNMSThreshold float32 `json:"detection_nms_threshold" mapstructure:"detection_nms_threshold"`
	MaxDetections         int     `json:"max_detections" mapstructure:"max_detections"`
}

var DefaultProposalParams = &ProposalParams{
	PreNMSTopK:            6000,
	PostNMSTopK:           2000,
	NMSThreshold:          0.7,
	DetectionNMSThreshold: 0.5,
	MaxDetections:         10,
}

func NewProposalParams(preNMSTopK, postNMSTopK int, nmsThreshold, detectionNMSThreshold float32, maxDetections int) *ProposalParams {
	return &ProposalParams{
		PreNMSTopK:            preNMSTopK,
		PostNMSTopK:           postNMSTopK,
		NMSThreshold:          nmsThreshold,
		DetectionNMSThreshold: detectionNMSThreshold,
		MaxDetections:         maxDetections,
	}
}

type BackboneParams struct {
	ModelName      string        `json:"model_name" mapstructure:"model_name"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
	ImageShortSide int           `json:"image_short_side" mapstructure:"image_short_side"`
	PixelMeans     []float32     `json:"pixel_means" mapstructure:"pixel_means"`
}

var DefaultBackboneParams = &BackboneParams{
	ModelName:      "backbone_vgg16",
	Timeout:        20 * time.Second,
	ImageShortSide: 600,
	PixelMeans:     []float32{123.68, 116.779, 103.939},
}

func NewBackboneParams(modelName string, timeout time.Duration, imageShortSide int, pixelMeans []float32) *BackboneParams {
	return &BackboneParams{
		ModelName:      modelName,
		Timeout:        timeout,
		ImageShortSide: imageShortSide,
		PixelMeans:     pixelMeans,
	}
}

type RPNHeadParams struct {
	ModelName string        `json:"model_name" mapstructure:"model_name"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

var DefaultRPNHeadParams = &RPNHeadParams{
	ModelName: "rpn_head",
	Timeout:   20 * time.Second,
}

func NewRPNHeadParams(modelName string, timeout time.Duration) *RPNHeadParams {
	return &RPNHeadParams{
		ModelName: modelName,
		Timeout:   timeout,
	}
}

type HeadClassifierParams struct {
	ModelName  string        `json:"model_name" mapstructure:"model_name"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	BatchSize  int           `json:"batch_size" mapstructure:"batch_size"`
	NumClasses int           `json:"num_classes" mapstructure:"num_classes"`
}

var DefaultHeadClassifierParams = &HeadClassifierParams{
	ModelName:  "head_classifier",
	Timeout:    20 * time.Second,
	BatchSize:  2000,
	NumClasses: 20,
}

func NewHeadClassifierParams(modelName string, timeout time.Duration, batchSize, numClasses int) *HeadClassifierParams {
	return &HeadClassifierParams{
		ModelName:  modelName,
		Timeout:    timeout,
		BatchSize:  batchSize,
		NumClasses: numClasses,
	}
}

type CacheParams struct {
	Backend  string        `json:"backend" mapstructure:"backend"`
	Addr     string        `json:"addr" mapstructure:"addr"`
	Password string        `json:"password" mapstructure:"password"`
	DB       int           `json:"db" mapstructure:"db"`
	TTL      time.Duration `json:"ttl" mapstructure:"ttl"`
}

var DefaultCacheParams = &CacheParams{
	Backend: "memory",
	Addr:    "localhost:6379",
	TTL:     24 * time.Hour,
}

func NewCacheParams(backend, addr, password string, db int, ttl time.Duration) *CacheParams {
	return &CacheParams{
		Backend:  backend,
		Addr:     addr,
		Password: password,
		DB:       db,
		TTL:      ttl,
	}
}

// VOCClassNames are the PASCAL VOC object classes in label order.
var VOCClassNames = []string{
	"aeroplane", "bicycle", "bird", "boat", "bottle",
	"bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person",
	"pottedplant", "sheep", "sofa", "train", "tvmonitor",
}
