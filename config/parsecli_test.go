package config

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertConfigError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr), "expected *ConfigError, got %T: %v", err, err)
}

func TestParseSynthesisLayers(t *testing.T) {
	layers, err := ParseSynthesisLayers("32-1-linear-relu,X-1-linear-none,X-3-residual-none")
	require.NoError(t, err)
	assert.Equal(t, []string{"32-1-linear-relu", "X-1-linear-none", "X-3-residual-none"}, layers)

	// Empty tokens are dropped, order preserved.
	layers, err = ParseSynthesisLayers(",a,,b,")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, layers)

	_, err = ParseSynthesisLayers("")
	assertConfigError(t, err)
	_, err = ParseSynthesisLayers(",,")
	assertConfigError(t, err)
}

func TestParseArmArchitecture(t *testing.T) {
	arm, err := ParseArmArchitecture("8,2")
	require.NoError(t, err)
	assert.Equal(t, ArmConfig{DimArm: 8, NHiddenLayersArm: 2}, arm)

	_, err = ParseArmArchitecture("8,2,1")
	assertConfigError(t, err)
	_, err = ParseArmArchitecture("8")
	assertConfigError(t, err)
	_, err = ParseArmArchitecture("8,two")
	assertConfigError(t, err)
}

func TestParseFeaturesPerResolution(t *testing.T) {
	counts, err := ParseFeaturesPerResolution("1,1,1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, counts)

	_, err = ParseFeaturesPerResolution("1,2,1")
	assertConfigError(t, err)
	_, err = ParseFeaturesPerResolution("1,x,1")
	assertConfigError(t, err)
}

func TestIsImagePath(t *testing.T) {
	assert.True(t, IsImagePath("foo.png"))
	assert.True(t, IsImagePath("dir/foo.JPEG"))
	assert.True(t, IsImagePath("foo.Jpg"))
	assert.True(t, IsImagePath("foo.ppm"))
	assert.False(t, IsImagePath("foo.yuv"))
	assert.False(t, IsImagePath("foo"))
}

func TestBuildCodingStructure(t *testing.T) {
	cfg := &RunConfig{Input: "datasets/kodak/foo.png"}
	cs, err := BuildCodingStructure(cfg)
	require.NoError(t, err)
	assert.Equal(t, CodingStructure{IntraPeriod: 0, PPeriod: 0, SeqName: "foo"}, cs)

	// Still images must not carry a temporal structure.
	cfg.Enc.IntraPeriod = 4
	_, err = BuildCodingStructure(cfg)
	assertConfigError(t, err)

	// Out-of-range periods fail regardless of the input type.
	cfg = &RunConfig{Input: "video.yuv"}
	cfg.Enc.IntraPeriod = 256
	_, err = BuildCodingStructure(cfg)
	assertConfigError(t, err)
	cfg.Enc.IntraPeriod = 32
	cfg.Enc.PPeriod = -1
	_, err = BuildCodingStructure(cfg)
	assertConfigError(t, err)

	// Video inputs may carry periods within [0, 255].
	cfg.Enc.PPeriod = 4
	cs, err = BuildCodingStructure(cfg)
	require.NoError(t, err)
	assert.Equal(t, CodingStructure{IntraPeriod: 32, PPeriod: 4, SeqName: "video"}, cs)
}

func TestBuildManagerParams(t *testing.T) {
	cfg := &RunConfig{
		Lmbda: 1e-3,
		Enc: EncodingConfig{
			StartLR:     1e-2,
			NTrainLoops: 2,
			NItr:        500,
			Recipe:      PresetConfig{PresetName: "c3x"},
		},
	}
	params := BuildManagerParams(cfg)
	assert.Equal(t, "c3x", params.Preset.PresetName)
	assert.Equal(t, 1e-2, params.StartLR)
	assert.Equal(t, 1e-3, params.Lmbda)
	assert.Equal(t, 2, params.NTrainLoops)
	assert.Equal(t, 500, params.NItr)
}
