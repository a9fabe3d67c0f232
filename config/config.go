package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DecoderConfig describes the architecture of the per-image decoder:
// synthesis layers, ARM dimensions, latent pyramid and upsampling kernels.
// It is immutable once parsed.
type DecoderConfig struct {
	// LayersSynthesis is the ordered list of synthesis layer descriptors,
	// e.g. "32-1-linear-relu".
	LayersSynthesis []string

	// Arm holds the auto-regressive module dimensions.
	Arm ArmConfig

	// NFtPerRes gives the number of features of the i-th latent grid, of
	// resolution (H/2^i, W/2^i). Currently always 1 per grid.
	NFtPerRes []int

	// UpsKSize and UpsPreconcatKSize are the upsampling kernel sizes.
	UpsKSize          int
	UpsPreconcatKSize int

	// EncoderGain scales the latent initialization.
	EncoderGain int
}

// rawDecoderConfig is the YAML wire form of DecoderConfig, with the
// architecture fields in their comma-separated command-line form.
type rawDecoderConfig struct {
	LayersSynthesis   string `yaml:"layers_synthesis"`
	Arm               string `yaml:"arm"`
	NFtPerRes         string `yaml:"n_ft_per_res"`
	UpsKSize          int    `yaml:"ups_k_size"`
	UpsPreconcatKSize int    `yaml:"ups_preconcat_k_size"`
	EncoderGain       int    `yaml:"encoder_gain"`
}

// UnmarshalYAML parses the comma-separated architecture strings into their
// typed form, so a DecoderConfig is fully validated once loaded.
func (c *DecoderConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw rawDecoderConfig
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "failed to decode decoder config")
	}
	layers, err := ParseSynthesisLayers(raw.LayersSynthesis)
	if err != nil {
		return err
	}
	arm, err := ParseArmArchitecture(raw.Arm)
	if err != nil {
		return err
	}
	nFtPerRes, err := ParseFeaturesPerResolution(raw.NFtPerRes)
	if err != nil {
		return err
	}
	c.LayersSynthesis = layers
	c.Arm = arm
	c.NFtPerRes = nFtPerRes
	c.UpsKSize = raw.UpsKSize
	c.UpsPreconcatKSize = raw.UpsPreconcatKSize
	c.EncoderGain = raw.EncoderGain
	return nil
}

// TrainerPhase describes one bounded training phase: learning-rate schedule,
// iteration budget, validation/early-stopping policy and the quantization
// noise applied to the latents while training.
type TrainerPhase struct {
	LR         float64 `yaml:"lr"`
	EndLR      float64 `yaml:"end_lr"`
	ScheduleLR bool    `yaml:"schedule_lr"`

	// MaxItr bounds the phase. It is the one field mutated between
	// experiment runs, when sweeping over iteration budgets.
	MaxItr int `yaml:"max_itr"`

	FreqValid int `yaml:"freq_valid"`
	Patience  int `yaml:"patience"`

	OptimizedModules []string `yaml:"optimized_module"`

	QuantizerType        string     `yaml:"quantizer_type"`
	QuantizerNoiseType   string     `yaml:"quantizer_noise_type"`
	SoftroundTemperature [2]float64 `yaml:"softround_temperature"`
	NoiseParameter       [2]float64 `yaml:"noise_parameter"`

	QuantizeModel bool `yaml:"quantize_model"`
}

// PresetConfig is a named sequence of training phases.
type PresetConfig struct {
	PresetName string         `yaml:"preset_name"`
	AllPhases  []TrainerPhase `yaml:"all_phases"`
}

// EncodingConfig holds the encoding-run parameters: GOP periods and the
// training recipe.
type EncodingConfig struct {
	IntraPeriod int          `yaml:"intra_period"`
	PPeriod     int          `yaml:"p_period"`
	StartLR     float64      `yaml:"start_lr"`
	NTrainLoops int          `yaml:"n_train_loops"`
	NItr        int          `yaml:"n_itr"`
	Recipe      PresetConfig `yaml:"recipe"`
}

// HypernetConfig describes the hypernet side of a run: the decoder
// architecture it predicts and the hidden width of its backbone.
type HypernetConfig struct {
	Dec         DecoderConfig `yaml:"dec_cfg"`
	HiddenWidth int           `yaml:"hidden_width"`
}

// RunConfig is the immutable top-level configuration of one encoding or
// finetuning run, loaded from a YAML file.
type RunConfig struct {
	Input    string         `yaml:"input"`
	Lmbda    float64        `yaml:"lmbda"`
	Enc      EncodingConfig `yaml:"enc_cfg"`
	Hypernet HypernetConfig `yaml:"hypernet_cfg"`
}

// LoadRunConfig reads and validates a YAML run configuration.
// Architecture fields are parsed eagerly: a malformed field fails here with
// a *ConfigError, before any training starts.
func LoadRunConfig(path string) (*RunConfig, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %q", path)
	}
	cfg := &RunConfig{}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		// Keep *ConfigError visible through the yaml wrapping.
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}
		return nil, errors.Wrapf(err, "failed to parse config file %q", path)
	}
	return cfg, nil
}
