package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
input: datasets/kodak/kodim01.png
lmbda: 0.001
enc_cfg:
  intra_period: 0
  p_period: 0
  start_lr: 0.01
  n_train_loops: 1
  n_itr: 1000
  recipe:
    preset_name: finetune
    all_phases:
      - lr: 0.005
        end_lr: 0.00001
        schedule_lr: true
        max_itr: -1
        freq_valid: 100
        patience: 100
        optimized_module: ["all"]
        quantizer_type: softround
        quantizer_noise_type: gaussian
        softround_temperature: [0.3, 0.1]
        noise_parameter: [0.25, 0.1]
        quantize_model: true
hypernet_cfg:
  hidden_width: 64
  dec_cfg:
    layers_synthesis: "48-1-linear-relu,X-1-linear-none,X-3-residual-relu,X-3-residual-none"
    arm: "8,2"
    n_ft_per_res: "1,1,1,1,1,1,1"
    ups_k_size: 8
    ups_preconcat_k_size: 7
    encoder_gain: 16
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadRunConfig(t *testing.T) {
	cfg, err := LoadRunConfig(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "datasets/kodak/kodim01.png", cfg.Input)
	assert.Equal(t, 0.001, cfg.Lmbda)
	assert.Equal(t, 1000, cfg.Enc.NItr)

	dec := cfg.Hypernet.Dec
	assert.Len(t, dec.LayersSynthesis, 4)
	assert.Equal(t, ArmConfig{DimArm: 8, NHiddenLayersArm: 2}, dec.Arm)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1}, dec.NFtPerRes)
	assert.Equal(t, 8, dec.UpsKSize)
	assert.Equal(t, 16, dec.EncoderGain)

	require.Len(t, cfg.Enc.Recipe.AllPhases, 1)
	phase := cfg.Enc.Recipe.AllPhases[0]
	assert.Equal(t, 0.005, phase.LR)
	assert.True(t, phase.ScheduleLR)
	assert.Equal(t, -1, phase.MaxItr)
	assert.Equal(t, 100, phase.Patience)
	assert.Equal(t, [2]float64{0.3, 0.1}, phase.SoftroundTemperature)
}

func TestLoadRunConfigBadArm(t *testing.T) {
	bad := `
input: foo.png
lmbda: 0.001
hypernet_cfg:
  dec_cfg:
    layers_synthesis: "32-1-linear-relu"
    arm: "8,2,1"
    n_ft_per_res: "1,1"
`
	_, err := LoadRunConfig(writeConfig(t, bad))
	require.Error(t, err)
}

func TestLoadRunConfigMissingFile(t *testing.T) {
	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
