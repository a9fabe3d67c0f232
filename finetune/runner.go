// Package finetune drives the per-image finetuning experiments: it runs one
// bounded training phase on a hypernet-predicted (or freshly initialized)
// codec model, quantizes and evaluates it, and sweeps that procedure over a
// dataset and a list of iteration budgets.
package finetune

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/types/tensors/images"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/tillaczel/cool-chic/codec"
	"github.com/tillaczel/cool-chic/config"
	"github.com/tillaczel/cool-chic/hypernet"
	"github.com/tillaczel/cool-chic/results"
)

// FromScratchAnchor labels runs trained from scratch, without a hypernet.
const FromScratchAnchor = "coolchic-training"

// Runner finetunes one image at a time: load, initialize (hypernet predicted
// or from scratch), train one phase, quantize, evaluate, release.
type Runner struct {
	Backend backends.Backend

	// Hypernet predicts the initial per-image model. Unused (may be nil) in
	// from-scratch mode.
	Hypernet *hypernet.Net

	Dec   config.DecoderConfig
	Lmbda float64

	// FromScratch trains a freshly initialized model instead of finetuning
	// the hypernet prediction.
	FromScratch bool

	// QuantizationBits defaults to codec.DefaultQuantizationBits.
	QuantizationBits int

	// AttachProgress shows a progress bar on the training loop. Threaded
	// explicitly so batch sweeps can silence per-image training output.
	AttachProgress bool
}

// AnchorLabel identifies this runner's method in the results table.
func (r *Runner) AnchorLabel() string {
	if r.FromScratch {
		return FromScratchAnchor
	}
	return r.Hypernet.Kind().String() + "-finetuning"
}

// LoadImage reads an image file and converts it to a [1, H, W, 3] tensor
// with values in [0, 1].
func LoadImage(path string) (img *tensors.Tensor, height, width int, err error) {
	decoded, err := imaging.Open(path)
	if err != nil {
		return nil, 0, 0, errors.Wrapf(err, "failed to load image %q", path)
	}
	bounds := decoded.Bounds()
	height, width = bounds.Dy(), bounds.Dx()
	img = images.ToTensor(codec.DType).Batch([]image.Image{decoded})
	return
}

// Run executes the full finetuning pipeline for one image with the given
// training phase. It returns exactly one metrics record: only the final
// measurement (post-quantization, when the phase quantizes the model) is
// meaningful; in-training validations are internal to the loop.
//
// Failures propagate unhandled: one bad image aborts the whole sweep.
func (r *Runner) Run(imgPath string, phase config.TrainerPhase) ([]results.SummaryEncodingMetrics, error) {
	seqName := config.FileStem(imgPath)

	img, height, width, err := LoadImage(imgPath)
	if err != nil {
		return nil, err
	}

	params, err := codec.ParamsFromDecoderConfig(r.Dec)
	if err != nil {
		img.FinalizeAll()
		return nil, err
	}
	params.SetImageSize(height, width)

	var enc *codec.Encoder
	if r.FromScratch {
		enc, err = codec.New(r.Backend, params, r.Lmbda, img)
	} else {
		enc, err = r.Hypernet.PredictEncoder(img, params, r.Lmbda)
	}
	if err != nil {
		img.FinalizeAll()
		return nil, errors.WithMessagef(err, "failed to initialize model for %q", seqName)
	}
	// The per-image model is scoped to this invocation: releasing it here
	// bounds peak memory across long dataset sweeps.
	defer enc.Finalize()

	trainResult, err := enc.Train(phase, r.AttachProgress)
	if err != nil {
		return nil, errors.WithMessagef(err, "training failed for %q", seqName)
	}
	if trainResult.EarlyStopped {
		klog.V(1).Infof("%s: early stopped (budget %d)", seqName, phase.MaxItr)
	}

	if phase.QuantizeModel {
		bits := r.QuantizationBits
		if bits == 0 {
			bits = codec.DefaultQuantizationBits
		}
		if err := enc.Quantize(bits); err != nil {
			return nil, errors.WithMessagef(err, "quantization failed for %q", seqName)
		}
	}

	rd, err := enc.Eval()
	if err != nil {
		return nil, errors.WithMessagef(err, "evaluation failed for %q", seqName)
	}

	return []results.SummaryEncodingMetrics{{
		SeqName: seqName,
		Anchor:  r.AnchorLabel(),
		Lmbda:   r.Lmbda,
		RateBpp: rd.Bpp,
		PSNRdB:  rd.PSNRdB,
		NItr:    phase.MaxItr,
	}}, nil
}
