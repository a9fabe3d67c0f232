package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillaczel/cool-chic/config"
)

func TestParseSynthesisLayer(t *testing.T) {
	layer, err := ParseSynthesisLayer("32-1-linear-relu")
	require.NoError(t, err)
	assert.Equal(t, SynthesisLayer{OutFeatures: 32, KernelSize: 1, Residual: false, Activation: "relu"}, layer)

	layer, err = ParseSynthesisLayer("X-3-residual-none")
	require.NoError(t, err)
	assert.Equal(t, SynthesisLayer{OutFeatures: OutputChannels, KernelSize: 3, Residual: true, Activation: "none"}, layer)

	for _, bad := range []string{"32-1-linear", "a-1-linear-relu", "32-b-linear-relu", "32-1-weird-relu"} {
		_, err = ParseSynthesisLayer(bad)
		assert.Error(t, err, "descriptor %q should not parse", bad)
	}
}

func TestParamsFromDecoderConfig(t *testing.T) {
	dec := config.DecoderConfig{
		LayersSynthesis: []string{"48-1-linear-relu", "X-3-residual-none"},
		Arm:             config.ArmConfig{DimArm: 8, NHiddenLayersArm: 2},
		NFtPerRes:       []int{1, 1, 1},
		UpsKSize:        8,
		EncoderGain:     16,
	}
	p, err := ParamsFromDecoderConfig(dec)
	require.NoError(t, err)
	require.Len(t, p.Synthesis, 2)
	assert.Equal(t, 48, p.Synthesis[0].OutFeatures)
	assert.Equal(t, OutputChannels, p.Synthesis[1].OutFeatures)
	assert.Equal(t, dec.Arm, p.Arm)

	p.SetImageSize(512, 768)
	h, w := p.LatentSize(0)
	assert.Equal(t, 512, h)
	assert.Equal(t, 768, w)
	h, w = p.LatentSize(2)
	assert.Equal(t, 128, h)
	assert.Equal(t, 192, w)

	dec.LayersSynthesis = []string{"48-1-linear"}
	_, err = ParamsFromDecoderConfig(dec)
	assert.Error(t, err)
}
