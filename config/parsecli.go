// Package config holds the typed run and decoder configurations of the
// Cool-Chic encoder, the parsing of their comma-separated command-line forms,
// and the derived coding-structure and encoder-manager parameters.
//
// All validation happens here, eagerly, before any model is touched: a bad
// field surfaces as a *ConfigError and terminates the run.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ConfigError reports a malformed or out-of-range configuration value.
// It is always produced at parse/validation time, never during training.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// Errorf creates a *ConfigError with a formatted message.
func Errorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ParseSynthesisLayers splits the comma-separated synthesis description into
// one string per layer, preserving order. Empty tokens are dropped.
// At least one layer must remain.
//
// Example input: "32-1-linear-relu,X-1-linear-none,X-3-residual-relu,X-3-residual-none"
func ParseSynthesisLayers(spec string) ([]string, error) {
	var layers []string
	for _, token := range strings.Split(spec, ",") {
		if token == "" {
			continue
		}
		layers = append(layers, token)
	}
	if len(layers) == 0 {
		return nil, Errorf("synthesis should have at least one layer, found nothing in %q: "+
			"try something like 32-1-linear-relu,X-1-linear-none,X-3-residual-relu,X-3-residual-none", spec)
	}
	return layers, nil
}

// ArmConfig is the auto-regressive module architecture: context size and
// number of hidden layers.
type ArmConfig struct {
	DimArm           int `yaml:"dim_arm"`
	NHiddenLayersArm int `yaml:"n_hidden_layers_arm"`
}

// ParseArmArchitecture parses the "<dim_arm>,<n_hidden_layers_arm>" form.
func ParseArmArchitecture(spec string) (ArmConfig, error) {
	tokens := strings.Split(spec, ",")
	if len(tokens) != 2 {
		return ArmConfig{}, Errorf("arm format should be X,Y, found %q", spec)
	}
	var values [2]int
	for ii, token := range tokens {
		v, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil {
			return ArmConfig{}, Errorf("arm format should be X,Y with integer values, found %q", spec)
		}
		values[ii] = v
	}
	return ArmConfig{DimArm: values[0], NHiddenLayersArm: values[1]}, nil
}

// ParseFeaturesPerResolution parses the comma-separated feature counts, one
// per latent resolution. The current codec only supports one feature per
// latent grid, so every value must be 1.
func ParseFeaturesPerResolution(spec string) ([]int, error) {
	var counts []int
	for _, token := range strings.Split(spec, ",") {
		if token == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil {
			return nil, Errorf("n_ft_per_res must be a comma-separated list of ints, found %q", spec)
		}
		counts = append(counts, v)
	}
	for _, v := range counts {
		if v != 1 {
			return nil, Errorf("n_ft_per_res should only contain 1, found %v", counts)
		}
	}
	return counts, nil
}

// imageExtensions are the still-image formats the encoder accepts.
var imageExtensions = []string{".png", ".jpeg", ".jpg", ".ppm"}

// IsImagePath returns whether the file extension denotes a still image
// (PNG, JPEG or PPM), case-insensitively.
func IsImagePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, imgExt := range imageExtensions {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// CodingStructure describes the GOP structure of one encoding run.
// For still images both periods are zero.
type CodingStructure struct {
	IntraPeriod int
	PPeriod     int
	SeqName     string
}

// BuildCodingStructure derives the coding structure from the run
// configuration, validating the period ranges and the image/video
// consistency of the input.
func BuildCodingStructure(cfg *RunConfig) (CodingStructure, error) {
	intraPeriod := cfg.Enc.IntraPeriod
	pPeriod := cfg.Enc.PPeriod
	if intraPeriod < 0 || intraPeriod > 255 {
		return CodingStructure{}, Errorf("intra period should be in [0, 255], found %d", intraPeriod)
	}
	if pPeriod < 0 || pPeriod > 255 {
		return CodingStructure{}, Errorf("P period should be in [0, 255], found %d", pPeriod)
	}
	if IsImagePath(cfg.Input) && (intraPeriod != 0 || pPeriod != 0) {
		return CodingStructure{}, Errorf(
			"encoding a PNG, JPEG or PPM image %q must be done with intra_period = 0 and "+
				"p_period = 0, found intra_period = %d and p_period = %d",
			cfg.Input, intraPeriod, pPeriod)
	}
	return CodingStructure{
		IntraPeriod: intraPeriod,
		PPeriod:     pPeriod,
		SeqName:     FileStem(cfg.Input),
	}, nil
}

// FileStem returns the base name of path without its extension.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ManagerParams is the parameter set of the frame-encoder manager: the
// training preset and the rate-distortion/loop knobs it needs.
type ManagerParams struct {
	Preset      PresetConfig
	StartLR     float64
	Lmbda       float64
	NTrainLoops int
	NItr        int
}

// BuildManagerParams maps the run configuration's training recipe into the
// frame-encoder manager parameters. Pure field mapping, no extra validation.
func BuildManagerParams(cfg *RunConfig) ManagerParams {
	return ManagerParams{
		Preset:      cfg.Enc.Recipe,
		StartLR:     cfg.Enc.StartLR,
		Lmbda:       cfg.Lmbda,
		NTrainLoops: cfg.Enc.NTrainLoops,
		NItr:        cfg.Enc.NItr,
	}
}
