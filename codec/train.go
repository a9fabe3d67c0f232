package codec

import (
	"math"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/ml/train/optimizers/cosineschedule"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/tillaczel/cool-chic/config"
)

// errEarlyStop is returned by the validation hook to stop the loop once
// patience is exhausted. Reported, not fatal.
var errEarlyStop = errors.New("early stopping: patience exhausted")

// TrainResult summarizes one training phase.
type TrainResult struct {
	// FinalLoss is the best validation loss observed.
	FinalLoss float64

	// EarlyStopped is set when the phase ended on patience exhaustion
	// rather than on the iteration budget.
	EarlyStopped bool
}

// cosineSchedule derives the LR schedule of a phase: the cosine period (0
// disables the schedule) and the learning rate it decays to.
func cosineSchedule(phase config.TrainerPhase) (periodSteps int, minLR float64) {
	if !phase.ScheduleLR {
		return 0, 0
	}
	return phase.MaxItr, phase.EndLR
}

// noiseAmplitude of a phase's latent quantization noise. The phase carries a
// (start, end) pair; the codec applies the starting amplitude for the whole
// phase. Unset means unit noise.
func noiseAmplitude(phase config.TrainerPhase) float64 {
	if phase.NoiseParameter[0] <= 0 {
		return 1
	}
	return phase.NoiseParameter[0]
}

// moduleScopes maps the recipe's optimized-module names to variable scopes.
var moduleScopes = map[string]string{
	"all":       "",
	"latent":    LatentScope,
	"synthesis": SynthesisScope,
	"arm":       ArmScope,
}

// trainableScopes resolves a phase's optimized-module selection into the set
// of variable scopes to train. A nil result trains everything ("all", or no
// selection given).
func trainableScopes(modules []string) (map[string]bool, error) {
	if len(modules) == 0 {
		return nil, nil
	}
	scopes := make(map[string]bool)
	for _, module := range modules {
		scope, ok := moduleScopes[module]
		if !ok {
			return nil, errors.Errorf("unknown optimized module %q, must be one of all, latent, synthesis or arm", module)
		}
		if scope == "" {
			return nil, nil
		}
		scopes[scope] = true
	}
	return scopes, nil
}

// modelFn builds the training graph: decode the latents and return the
// reconstruction and the rate, to be combined by the loss.
func (e *Encoder) modelFn(ctx *context.Context, spec any, inputs []*Node) []*Node {
	g := inputs[0].Graph()
	if e.cosineSteps > 0 {
		schedule := cosineschedule.New(ctx, g, DType).
			PeriodInSteps(e.cosineSteps)
		if e.minLR > 0 {
			schedule.MinLearningRate(e.minLR)
		}
		schedule.Done()
	}
	recon, bpp := e.decodeGraph(ctx, g)
	// The graph build materialized all model variables; restrict what the
	// trainer optimizes before it collects gradients.
	e.applyTrainable()
	return []*Node{recon, bpp}
}

// lossFn is the rate-distortion loss: MSE(image, reconstruction) + λ·bpp.
func (e *Encoder) lossFn(labels, predictions []*Node) *Node {
	mse := losses.MeanSquaredError(labels, predictions[:1])
	bpp := predictions[1]
	return Add(mse, MulScalar(bpp, e.lmbda))
}

// Train runs one bounded training phase on the encoder's image: Adam with an
// optional cosine LR schedule, quantization noise on the latents, and a
// validation hook every phase.FreqValid steps implementing early stopping.
//
// Early stop on patience exhaustion is reported in the result, not an error.
func (e *Encoder) Train(phase config.TrainerPhase, attachProgress bool) (*TrainResult, error) {
	if phase.MaxItr <= 0 {
		return nil, errors.Errorf("training phase needs max_itr > 0, got %d", phase.MaxItr)
	}
	trainScopes, err := trainableScopes(phase.OptimizedModules)
	if err != nil {
		return nil, err
	}
	e.trainScopes = trainScopes
	e.ctx.SetParam(optimizers.ParamOptimizer, "adam")
	e.ctx.SetParam(optimizers.ParamLearningRate, phase.LR)
	e.cosineSteps, e.minLR = cosineSchedule(phase)
	e.noiseAmp = noiseAmplitude(phase)

	// No extra metrics: the batch loss is the validation signal.
	trainer := train.NewTrainer(e.backend, e.ctx, e.modelFn, e.lossFn,
		optimizers.FromContext(e.ctx), nil, nil)
	loop := train.NewLoop(trainer)
	if attachProgress {
		commandline.AttachProgressBar(loop)
	}

	result := &TrainResult{FinalLoss: math.Inf(1)}
	sinceBest := 0
	if phase.FreqValid > 0 {
		train.EveryNSteps(loop, phase.FreqValid, "validation", 100,
			func(loop *train.Loop, stepMetrics []*tensors.Tensor) error {
				loss := float64(tensors.ToScalar[float32](stepMetrics[0]))
				if loss < result.FinalLoss {
					result.FinalLoss = loss
					sinceBest = 0
					return nil
				}
				sinceBest += phase.FreqValid
				if phase.Patience > 0 && sinceBest >= phase.Patience {
					return errEarlyStop
				}
				return nil
			})
	}

	ds := e.Dataset("single-image")
	finalMetrics, err := loop.RunSteps(ds, phase.MaxItr)
	if err != nil {
		if !errors.Is(err, errEarlyStop) {
			return nil, errors.WithMessage(err, "training phase failed")
		}
		result.EarlyStopped = true
		klog.V(1).Infof("early stopped after %d steps (patience %d)", loop.LoopStep, phase.Patience)
		return result, nil
	}
	if len(finalMetrics) > 0 {
		loss := float64(tensors.ToScalar[float32](finalMetrics[0]))
		if loss < result.FinalLoss {
			result.FinalLoss = loss
		}
	}
	return result, nil
}
