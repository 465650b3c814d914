package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string               `mapstructure:"mode"`
	TritonURL      string               `mapstructure:"triton_url"`
	Anchor         AnchorParams         `mapstructure:"anchor"`
	Label          LabelParams          `mapstructure:"label"`
	Sampler        SamplerParams        `mapstructure:"sampler"`
	Loss           LossParams           `mapstructure:"loss"`
	Proposal       ProposalParams       `mapstructure:"proposal"`
	Backbone       BackboneParams       `mapstructure:"backbone"`
	RPNHead        RPNHeadParams        `mapstructure:"rpn_head"`
	HeadClassifier HeadClassifierParams `mapstructure:"head_classifier"`
	Cache          CacheParams          `mapstructure:"cache"`
}

// Load reads a YAML config file, filling unset keys from the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.Label.MaxIoUScope != MaxIoUScopeCell && cfg.Label.MaxIoUScope != MaxIoUScopeGroundTruth {
		return nil, errors.Errorf("invalid label.max_iou_scope %q", cfg.Label.MaxIoUScope)
	}
	if cfg.Sampler.DesiredPositive > cfg.Sampler.DesiredTotal {
		return nil, errors.Errorf("sampler.desired_positive (%d) exceeds sampler.desired_total (%d)",
			cfg.Sampler.DesiredPositive, cfg.Sampler.DesiredTotal)
	}

	return &cfg, nil
}

// New loads config.yaml from the working directory, or returns the defaults.
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "debug")
	v.SetDefault("triton_url", "localhost:8001")

	v.SetDefault("anchor.scales", DefaultAnchorParams.Scales)
	v.SetDefault("anchor.aspect_ratios", DefaultAnchorParams.AspectRatios)

	v.SetDefault("label.positive_iou", DefaultLabelParams.PositiveIoU)
	v.SetDefault("label.negative_iou", DefaultLabelParams.NegativeIoU)
	v.SetDefault("label.use_cross_boundary_mask", DefaultLabelParams.UseCrossBoundaryMask)
	v.SetDefault("label.max_iou_scope", string(DefaultLabelParams.MaxIoUScope))

	v.SetDefault("sampler.desired_total", DefaultSamplerParams.DesiredTotal)
	v.SetDefault("sampler.desired_positive", DefaultSamplerParams.DesiredPositive)

	v.SetDefault("loss.lambda", DefaultLossParams.Lambda)
	v.SetDefault("loss.huber_delta", DefaultLossParams.HuberDelta)

	v.SetDefault("proposal.pre_nms_top_k", DefaultProposalParams.PreNMSTopK)
	v.SetDefault("proposal.post_nms_top_k", DefaultProposalParams.PostNMSTopK)
	v.SetDefault("proposal.nms_threshold", DefaultProposalParams.NMSThreshold)
	v.SetDefault("proposal.detection_nms_threshold", DefaultProposalParams.DetectionNMSThreshold)
	v.SetDefault("proposal.max_detections", DefaultProposalParams.MaxDetections)

	v.SetDefault("backbone.model_name", DefaultBackboneParams.ModelName)
	v.SetDefault("backbone.timeout", DefaultBackboneParams.Timeout)
	v.SetDefault("backbone.image_short_side", DefaultBackboneParams.ImageShortSide)
	v.SetDefault("backbone.pixel_means", DefaultBackboneParams.PixelMeans)

	v.SetDefault("rpn_head.model_name", DefaultRPNHeadParams.ModelName)
	v.SetDefault("rpn_head.timeout", DefaultRPNHeadParams.Timeout)

	v.SetDefault("head_classifier.model_name", DefaultHeadClassifierParams.ModelName)
	v.SetDefault("head_classifier.timeout", DefaultHeadClassifierParams.Timeout)
	v.SetDefault("head_classifier.batch_size", DefaultHeadClassifierParams.BatchSize)
	v.SetDefault("head_classifier.num_classes", DefaultHeadClassifierParams.NumClasses)

	v.SetDefault("cache.backend", DefaultCacheParams.Backend)
	v.SetDefault("cache.addr", DefaultCacheParams.Addr)
	v.SetDefault("cache.password", DefaultCacheParams.Password)
	v.SetDefault("cache.db", DefaultCacheParams.DB)
	v.SetDefault("cache.ttl", 24*time.Hour)
}

// DefaultConfig assembles the package defaults into a Config.
func DefaultConfig() *Config {
	return &Config{
		Mode:           "debug",
		TritonURL:      "localhost:8001",
		Anchor:         *DefaultAnchorParams,
		Label:          *DefaultLabelParams,
		Sampler:        *DefaultSamplerParams,
		Loss:           *DefaultLossParams,
		Proposal:       *DefaultProposalParams,
		Backbone:       *DefaultBackboneParams,
		RPNHead:        *DefaultRPNHeadParams,
		HeadClassifier: *DefaultHeadClassifierParams,
		Cache:          *DefaultCacheParams,
	}
}
