package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "mode: release\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 256, cfg.Sampler.DesiredTotal)
	assert.Equal(t, 128, cfg.Sampler.DesiredPositive)
	assert.InDelta(t, 0.7, cfg.Label.PositiveIoU, 1e-6)
	assert.InDelta(t, 0.3, cfg.Label.NegativeIoU, 1e-6)
	assert.Equal(t, MaxIoUScopeCell, cfg.Label.MaxIoUScope)
	assert.Equal(t, 2000, cfg.Proposal.PostNMSTopK)
	assert.Equal(t, 20*time.Second, cfg.Backbone.Timeout)
	assert.Equal(t, 9, cfg.Anchor.NumAnchors())
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
label:
  max_iou_scope: ground_truth
  use_cross_boundary_mask: true
sampler:
  desired_total: 64
  desired_positive: 16
anchor:
  scales: [32, 64]
  aspect_ratios: [1]
loss:
  lambda: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, MaxIoUScopeGroundTruth, cfg.Label.MaxIoUScope)
	assert.True(t, cfg.Label.UseCrossBoundaryMask)
	assert.Equal(t, 64, cfg.Sampler.DesiredTotal)
	assert.Equal(t, 16, cfg.Sampler.DesiredPositive)
	assert.Equal(t, []float32{32, 64}, cfg.Anchor.Scales)
	assert.Equal(t, 2, cfg.Anchor.NumAnchors())
	assert.InDelta(t, 10, cfg.Loss.Lambda, 1e-6)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "label:\n  max_iou_scope: image\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "sampler:\n  desired_total: 10\n  desired_positive: 20\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultSamplerParams.DesiredTotal, cfg.Sampler.DesiredTotal)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Len(t, VOCClassNames, cfg.HeadClassifier.NumClasses)
}
