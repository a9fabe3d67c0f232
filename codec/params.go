// Package codec implements the per-image Cool-Chic encoder: a latent pyramid
// plus a small synthesis network, overfitted to a single image and entropy
// coded with an auto-regressive rate model.
//
// The heavy lifting (graphs, gradients, optimizers) is done by GoMLX; this
// package owns the model definition, its per-image training phase, weight
// quantization and rate-distortion evaluation.
package codec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tillaczel/cool-chic/config"
)

// OutputChannels is the number of channels of the reconstructed image (RGB).
const OutputChannels = 3

// SynthesisLayer is one parsed synthesis layer descriptor.
// The wire form is "<out_ft>-<kernel>-<mode>-<non_linearity>", where out_ft
// may be "X" to mean the number of output channels of the image.
type SynthesisLayer struct {
	OutFeatures int
	KernelSize  int
	Residual    bool
	Activation  string // "relu", "none", ...
}

// ParseSynthesisLayer parses a single layer descriptor such as
// "32-1-linear-relu" or "X-3-residual-none".
func ParseSynthesisLayer(desc string) (SynthesisLayer, error) {
	tokens := strings.Split(desc, "-")
	if len(tokens) != 4 {
		return SynthesisLayer{}, errors.Errorf(
			"synthesis layer %q should have the form <out_ft>-<kernel>-<mode>-<non_linearity>", desc)
	}
	layer := SynthesisLayer{Activation: tokens[3]}
	if tokens[0] == "X" {
		layer.OutFeatures = OutputChannels
	} else {
		outFt, err := strconv.Atoi(tokens[0])
		if err != nil {
			return SynthesisLayer{}, errors.Errorf("synthesis layer %q: out_ft must be an int or X", desc)
		}
		layer.OutFeatures = outFt
	}
	kernel, err := strconv.Atoi(tokens[1])
	if err != nil {
		return SynthesisLayer{}, errors.Errorf("synthesis layer %q: kernel size must be an int", desc)
	}
	layer.KernelSize = kernel
	switch tokens[2] {
	case "linear":
	case "residual":
		layer.Residual = true
	default:
		return SynthesisLayer{}, errors.Errorf("synthesis layer %q: mode must be linear or residual", desc)
	}
	return layer, nil
}

// Params holds the architecture of one per-image encoder, plus the image
// size it is built for.
type Params struct {
	Synthesis []SynthesisLayer

	// NFtPerRes gives the number of features of the i-th latent grid, of
	// resolution (Height/2^i, Width/2^i).
	NFtPerRes []int

	UpsKSize          int
	UpsPreconcatKSize int

	Arm config.ArmConfig

	EncoderGain int

	Height, Width int
}

// ParamsFromDecoderConfig converts the validated decoder configuration into
// codec parameters. SetImageSize must be called before building an Encoder.
func ParamsFromDecoderConfig(dec config.DecoderConfig) (*Params, error) {
	p := &Params{
		NFtPerRes:         dec.NFtPerRes,
		UpsKSize:          dec.UpsKSize,
		UpsPreconcatKSize: dec.UpsPreconcatKSize,
		Arm:               dec.Arm,
		EncoderGain:       dec.EncoderGain,
	}
	for _, desc := range dec.LayersSynthesis {
		layer, err := ParseSynthesisLayer(desc)
		if err != nil {
			return nil, err
		}
		p.Synthesis = append(p.Synthesis, layer)
	}
	return p, nil
}

// SetImageSize fixes the resolution the latent pyramid is built for.
func (p *Params) SetImageSize(height, width int) {
	p.Height = height
	p.Width = width
}

// LatentSize returns the resolution of the i-th latent grid.
func (p *Params) LatentSize(i int) (height, width int) {
	height = max(1, p.Height>>i)
	width = max(1, p.Width>>i)
	return
}
